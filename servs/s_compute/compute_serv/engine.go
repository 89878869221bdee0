package compute_serv

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/GregAscolab/python-microservice-test/codec"
)

// Publisher is the slice of the bus client the engine needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// computation binds a stateful instance to its place in the signal graph.
type computation struct {
	source string
	kind   string
	output string
	impl   Computation
}

// Engine owns the signal state map, the registered computation chains and
// the trigger list. All mutation funnels through its lock, so handlers on
// different bus subscriptions see one consistent state.
type Engine struct {
	log zerolog.Logger
	pub Publisher

	mu       sync.Mutex
	state    map[string]any
	bySource map[string][]*computation
	outputs  map[string]*computation
	triggers []*Trigger
}

// NewEngine builds an empty engine publishing results through pub.
func NewEngine(pub Publisher, log zerolog.Logger) *Engine {
	return &Engine{
		log:      log,
		pub:      pub,
		state:    map[string]any{},
		bySource: map[string][]*computation{},
		outputs:  map[string]*computation{},
	}
}

// RegisterComputation appends a fresh instance of kind consuming source and
// producing output. Output names are unique across the whole engine, which
// is what makes chains addressable.
func (e *Engine) RegisterComputation(source, kind, output string) error {
	if source == output {
		return fmt.Errorf("output %q cannot consume itself", output)
	}
	impl, err := newComputation(kind)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.outputs[output]; exists {
		return fmt.Errorf("output %q is already registered", output)
	}
	c := &computation{source: source, kind: kind, output: output, impl: impl}
	e.bySource[source] = append(e.bySource[source], c)
	e.outputs[output] = c
	e.log.Info().Str("output", output).Str("kind", kind).Str("source", source).Msg("computation registered")
	return nil
}

// UnregisterComputation removes the instance bearing output and drops its
// last value from the state map.
func (e *Engine) UnregisterComputation(output string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.outputs[output]
	if !ok {
		return fmt.Errorf("computation with output %q not found", output)
	}
	delete(e.outputs, output)
	delete(e.state, output)

	list := e.bySource[c.source]
	for i, cc := range list {
		if cc == c {
			e.bySource[c.source] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(e.bySource[c.source]) == 0 {
		delete(e.bySource, c.source)
	}
	e.log.Info().Str("output", output).Msg("computation unregistered")
	return nil
}

// RegisterTrigger validates the trigger, initializes it inactive and
// replaces any existing trigger with the same name.
func (e *Engine) RegisterTrigger(t *Trigger) error {
	if t.Name == "" || t.Conditions == nil || len(t.Action) == 0 {
		return fmt.Errorf("trigger needs name, conditions and action")
	}
	for key, act := range t.Action {
		switch key {
		case OnBecomeActive, OnBecomeInactive, OnIsActive, OnIsInactive:
		default:
			return fmt.Errorf("unknown action key %q", key)
		}
		if act == nil || act.Type == "" || act.Subject == "" {
			return fmt.Errorf("action %q needs type and subject", key)
		}
	}
	t.isActive = false
	t.lastEvent = nil

	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeTriggerLocked(t.Name)
	e.triggers = append(e.triggers, t)
	e.log.Info().Str("trigger", t.Name).Msg("trigger registered")
	return nil
}

// UnregisterTrigger removes the trigger by name.
func (e *Engine) UnregisterTrigger(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.removeTriggerLocked(name) {
		return fmt.Errorf("trigger %q not found", name)
	}
	e.log.Info().Str("trigger", name).Msg("trigger unregistered")
	return nil
}

func (e *Engine) removeTriggerLocked(name string) bool {
	for i, t := range e.triggers {
		if t.Name == name {
			e.triggers = append(e.triggers[:i], e.triggers[i+1:]...)
			return true
		}
	}
	return false
}

// Signals returns the current state map keys, sorted.
func (e *Engine) Signals() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]string, 0, len(e.state))
	for k := range e.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ingest feeds one sample into the engine: state update, recursive fan-out
// through the chains, then one trigger evaluation pass.
func (e *Engine) Ingest(signal string, value any, t float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	visited := map[string]bool{signal: true}
	e.processLocked(signal, value, t, visited)
	e.evaluateTriggersLocked()
}

// processLocked is the chaining core. The visited set guards against a
// registered cycle: an output seen twice in one ingest stops the recursion
// with a logged error instead of spinning forever.
func (e *Engine) processLocked(signal string, value any, t float64, visited map[string]bool) {
	e.state[signal] = value

	for _, c := range e.bySource[signal] {
		if visited[c.output] {
			e.log.Error().Str("output", c.output).Str("signal", signal).Msg("computation cycle detected, recursion stopped")
			continue
		}
		visited[c.output] = true

		v, ok := toFloat(value)
		if !ok {
			e.log.Warn().Str("output", c.output).Str("signal", signal).Msg("non-numeric value, computation skipped")
			continue
		}
		newValue := c.impl.Update(v, t)

		data, err := codec.Marshal(codec.Record{
			"value":     newValue,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err == nil {
			err = e.pub.Publish("compute.result."+c.output, data)
		}
		if err != nil {
			e.log.Error().Err(err).Str("output", c.output).Msg("could not publish computation result")
		}

		e.processLocked(c.output, newValue, t, visited)
	}
}

// evaluateTriggersLocked runs every trigger's two-state machine once, in
// insertion order. Transitions stamp lastEvent; level states only fire
// their level actions.
func (e *Engine) evaluateTriggersLocked() {
	now := time.Now().UTC()
	for _, t := range e.triggers {
		met := t.allMet(e.state)
		switch {
		case met && !t.isActive:
			t.isActive = true
			t.lastEvent = &now
			e.log.Info().Str("trigger", t.Name).Msg("trigger became active")
			e.fireLocked(t, OnBecomeActive, now)
		case !met && t.isActive:
			t.isActive = false
			t.lastEvent = &now
			e.log.Info().Str("trigger", t.Name).Msg("trigger became inactive")
			e.fireLocked(t, OnBecomeInactive, now)
		case met:
			e.fireLocked(t, OnIsActive, now)
		default:
			e.fireLocked(t, OnIsInactive, now)
		}
	}
}

func (e *Engine) fireLocked(t *Trigger, key string, now time.Time) {
	act := t.Action[key]
	if act == nil {
		return
	}
	if act.Type != "publish" {
		e.log.Warn().Str("trigger", t.Name).Str("type", act.Type).Msg("unsupported action type ignored")
		return
	}
	payload := any(act.Payload)
	if act.Payload == nil {
		payload = codec.Record{
			"trigger_name": t.Name,
			"timestamp":    now.Format(time.RFC3339Nano),
		}
	}
	data, err := codec.Marshal(payload)
	if err == nil {
		err = e.pub.Publish(act.Subject, data)
	}
	if err != nil {
		e.log.Error().Err(err).Str("trigger", t.Name).Str("subject", act.Subject).Msg("could not publish trigger action")
	}
}

// Snapshot returns the periodic UI payload: the full state map plus the
// registered trigger names.
func (e *Engine) Snapshot() codec.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := codec.Record{}
	for k, v := range e.state {
		state[k] = v
	}
	names := []string{}
	for _, t := range e.triggers {
		names = append(names, t.Name)
	}
	return codec.Record{"computation_state": state, "triggers": names}
}

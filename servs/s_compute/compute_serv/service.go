// Package compute_serv implements the signal-processing service: it ingests
// raw data subjects, maintains the signal state map, runs chained derived
// computations and fires rule triggers on state transitions.
package compute_serv

import (
	"time"

	"github.com/GregAscolab/python-microservice-test/bus"
	"github.com/GregAscolab/python-microservice-test/codec"
	"github.com/GregAscolab/python-microservice-test/runtime"
)

// ServiceName is the bus identity of the compute engine.
const ServiceName = "compute_service"

// StatusSubject carries the engine's lifecycle announcements.
const StatusSubject = "compute.status"

// defaultSources are the data subjects ingested when settings carry no
// compute_service.sources list.
var defaultSources = []string{"can_data", "digital_twin.data"}

// Service is the compute worker.
type Service struct {
	engine *Engine
	rt     *runtime.Runtime
}

// New builds the compute service.
func New() *Service { return &Service{} }

// Name implements runtime.Logic.
func (s *Service) Name() string { return ServiceName }

// Start wires the engine to the bus: commands, data subjects and the
// periodic UI snapshot.
func (s *Service) Start(rt *runtime.Runtime) error {
	s.rt = rt
	s.engine = NewEngine(rt.Client, rt.Log)

	s.publishStatus("STARTING")

	rt.Router.Register("register_computation", s.handleRegisterComputation)
	rt.Router.Register("unregister_computation", s.handleUnregisterComputation)
	rt.Router.Register("register_trigger", s.handleRegisterTrigger)
	rt.Router.Register("unregister_trigger", s.handleUnregisterTrigger)
	rt.Router.Register("get_available_signals", s.handleGetAvailableSignals)

	for _, source := range s.sources() {
		if _, err := rt.Client.Subscribe(source, s.dataHandler(source)); err != nil {
			return err
		}
		rt.Log.Info().Str("subject", source).Msg("ingesting data source")
	}

	interval := rt.Settings.Float("compute_service.ui_publish_interval", 1.0)
	rt.Every(time.Duration(interval*float64(time.Second)), s.publishSnapshot)

	s.publishStatus("RUNNING")
	return nil
}

// Stop announces shutdown; engine state dies with the process.
func (s *Service) Stop() {
	s.publishStatus("STOPPING")
}

func (s *Service) sources() []string {
	raw, ok := s.rt.Settings.Get("compute_service.sources")
	if !ok {
		return defaultSources
	}
	list, ok := raw.([]any)
	if !ok {
		return defaultSources
	}
	var sources []string
	for _, v := range list {
		if name, ok := v.(string); ok && name != "" {
			sources = append(sources, name)
		}
	}
	if len(sources) == 0 {
		return defaultSources
	}
	return sources
}

// dataHandler ingests one data subject. Records with name/value fields
// become qualified per-signal samples; anything else lands under the
// source's own name.
func (s *Service) dataHandler(source string) bus.MsgHandler {
	return func(msg bus.Msg) {
		rec, err := codec.Decode(msg.Data)
		if err != nil {
			s.rt.Log.Error().Err(err).Str("subject", source).Msg("could not decode data record")
			return
		}
		if rec.Has("name") && rec.Has("value") {
			t := wallSeconds()
			if ms, ok := rec.GetFloat("ts"); ok {
				t = ms / 1000.0
			}
			s.engine.Ingest(source+"."+rec.GetString("name"), rec["value"], t)
			return
		}
		s.engine.Ingest(source, map[string]any(rec), wallSeconds())
	}
}

func (s *Service) handleRegisterComputation(args codec.Record) error {
	source := args.GetString("source_signal")
	kind := args.GetString("computation_type")
	output := args.GetString("output_name")
	if source == "" || kind == "" || output == "" {
		return s.replyError(args, "missing 'source_signal', 'computation_type' or 'output_name'")
	}
	if err := s.engine.RegisterComputation(source, kind, output); err != nil {
		return s.replyError(args, err.Error())
	}
	return s.replyOK(args)
}

func (s *Service) handleUnregisterComputation(args codec.Record) error {
	output := args.GetString("output_name")
	if output == "" {
		return s.replyError(args, "missing 'output_name'")
	}
	if err := s.engine.UnregisterComputation(output); err != nil {
		return s.replyError(args, err.Error())
	}
	return s.replyOK(args)
}

func (s *Service) handleRegisterTrigger(args codec.Record) error {
	rec, ok := args.GetRecord("trigger")
	if !ok {
		return s.replyError(args, "missing 'trigger'")
	}
	var trigger Trigger
	if err := rec.DecodeInto(&trigger); err != nil {
		return s.replyError(args, "invalid trigger: "+err.Error())
	}
	if err := s.engine.RegisterTrigger(&trigger); err != nil {
		return s.replyError(args, err.Error())
	}
	return s.replyOK(args)
}

func (s *Service) handleUnregisterTrigger(args codec.Record) error {
	name := args.GetString("name")
	if name == "" {
		return s.replyError(args, "missing trigger 'name'")
	}
	if err := s.engine.UnregisterTrigger(name); err != nil {
		return s.replyError(args, err.Error())
	}
	return s.replyOK(args)
}

func (s *Service) handleGetAvailableSignals(args codec.Record) error {
	return s.reply(args, codec.Record{
		"status":       "ok",
		"signals":      s.engine.Signals(),
		"computations": availableComputations(),
	})
}

func (s *Service) publishSnapshot() {
	data, err := codec.Marshal(s.engine.Snapshot())
	if err != nil {
		s.rt.Log.Error().Err(err).Msg("could not encode state snapshot")
		return
	}
	if err := s.rt.Client.Publish("compute.state.full", data); err != nil {
		s.rt.Log.Warn().Err(err).Msg("could not publish state snapshot")
	}
}

func (s *Service) publishStatus(status string) {
	data, err := codec.Marshal(codec.Record{
		"service":   ServiceName,
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	if err := s.rt.Client.Publish(StatusSubject, data); err != nil {
		s.rt.Log.Warn().Err(err).Str("status", status).Msg("could not publish engine status")
	}
	s.rt.Log.Info().Str("status", status).Msg("engine status")
}

func (s *Service) replyOK(args codec.Record) error {
	return s.reply(args, codec.Record{"status": "ok"})
}

func (s *Service) replyError(args codec.Record, msg string) error {
	s.rt.Log.Warn().Str("reason", msg).Msg("compute command rejected")
	return s.reply(args, codec.Record{"status": "error", "message": msg})
}

func (s *Service) reply(args, result codec.Record) error {
	replyTo := args.GetString("reply")
	if replyTo == "" {
		return nil
	}
	data, err := codec.Marshal(result)
	if err != nil {
		return err
	}
	return s.rt.Client.Publish(replyTo, data)
}

func wallSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

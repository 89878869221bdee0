// Package manager_serv implements the supervisor: it discovers unit
// manifests, spawns the fleet as child processes, restarts crashed ones and
// publishes the fleet status on the bus.
package manager_serv

import (
	"fmt"
	"sync"
	"time"

	"github.com/GregAscolab/python-microservice-test/codec"
	"github.com/GregAscolab/python-microservice-test/runtime"
	"github.com/GregAscolab/python-microservice-test/servs/s_manager/manager_api"
	"github.com/GregAscolab/python-microservice-test/servs/s_settings/settings_serv"
)

// ServiceName is the bus identity of the supervisor.
const ServiceName = "manager"

// StatusSubject carries the fleet snapshot.
const StatusSubject = "manager.status"

// Service statuses as seen in snapshots.
const (
	StatusStopped    = "stopped"
	StatusStarting   = "starting"
	StatusRunning    = "running"
	StatusStopping   = "stopping"
	StatusCrashed    = "crashed"
	StatusRestarting = "restarting"
	StatusError      = "error"
)

const (
	maxRetries     = 3
	monitorPeriod  = 2 * time.Second
	settingsWarmup = 2 * time.Second
)

// Config carries the supervisor's own knobs. It cannot fetch them from the
// settings service, which is one of its children.
type Config struct {
	// UnitsDir is scanned for unit.json manifests.
	UnitsDir string

	// JournalPath enables the sqlite transition journal when non-empty.
	JournalPath string

	// HTTPAddr enables the HTTP control surface when non-empty.
	HTTPAddr string

	// MonitorPeriod overrides the reaper cadence (default 2s).
	MonitorPeriod time.Duration
}

type unitState struct {
	unit        Unit
	status      string
	proc        *process
	retries     int
	lastCommand string
}

// Service is the supervisor worker.
type Service struct {
	cfg     Config
	journal *Journal
	api     *manager_api.API

	mu    sync.Mutex
	units map[string]*unitState
	order []string

	rt *runtime.Runtime
}

// New builds the supervisor.
func New(cfg Config) *Service {
	return &Service{cfg: cfg, units: map[string]*unitState{}}
}

// Name implements runtime.Logic.
func (s *Service) Name() string { return ServiceName }

// Start discovers units, opens the journal, registers the fleet commands
// and launches the monitor loop.
func (s *Service) Start(rt *runtime.Runtime) error {
	s.rt = rt

	units, err := DiscoverUnits(s.cfg.UnitsDir)
	if err != nil {
		return err
	}
	for _, u := range units {
		s.units[u.Name] = &unitState{unit: u, status: StatusStopped, lastCommand: "stop"}
		s.order = append(s.order, u.Name)
	}
	rt.Log.Info().Int("units", len(units)).Str("dir", s.cfg.UnitsDir).Msg("units discovered")

	if s.cfg.JournalPath != "" {
		j, err := OpenJournal(s.cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		s.journal = j
	}

	rt.Router.Register("start_service", s.withName(s.startUnit))
	rt.Router.Register("stop_service", s.withName(s.stopUnit))
	rt.Router.Register("restart_service", s.withName(s.restartUnit))
	rt.Router.Register("start_all", func(args codec.Record) error {
		s.startAll()
		return s.reply(args, codec.Record{"status": "ok"})
	})
	rt.Router.Register("stop_all", func(args codec.Record) error {
		s.stopAll()
		return s.reply(args, codec.Record{"status": "ok"})
	})
	rt.Router.Register("restart_all", func(args codec.Record) error {
		s.stopAll()
		s.startAll()
		return s.reply(args, codec.Record{"status": "ok"})
	})
	rt.Router.Register("get_status", s.handleGetStatus)
	rt.Router.Register("get_history", s.handleGetHistory)

	if s.cfg.HTTPAddr != "" {
		s.api = manager_api.New(s.cfg.HTTPAddr, s, rt.Log)
		if err := s.api.Start(); err != nil {
			return fmt.Errorf("http api: %w", err)
		}
		rt.Log.Info().Str("addr", s.api.Addr()).Msg("http api listening")
	}

	period := s.cfg.MonitorPeriod
	if period <= 0 {
		period = monitorPeriod
	}
	rt.Every(period, s.monitor)
	s.publishStatus()
	return nil
}

// Stop brings the fleet down, then the control surfaces.
func (s *Service) Stop() {
	s.stopAll()
	if s.api != nil {
		s.api.Stop()
	}
	if s.journal != nil {
		_ = s.journal.Close()
	}
}

// withName adapts a per-unit action into a command handler taking
// "service_name" ("name" is accepted as an alias).
func (s *Service) withName(fn func(name string) error) func(codec.Record) error {
	return func(args codec.Record) error {
		name := args.GetString("service_name")
		if name == "" {
			name = args.GetString("name")
		}
		if name == "" {
			return s.reply(args, codec.Record{"status": "error", "message": "missing 'service_name'"})
		}
		if err := fn(name); err != nil {
			return s.reply(args, codec.Record{"status": "error", "message": err.Error()})
		}
		return s.reply(args, codec.Record{"status": "ok"})
	}
}

// StartService launches one unit and resets its crash budget.
func (s *Service) StartService(name string) error { return s.startUnit(name) }

// StopService terminates one unit gracefully.
func (s *Service) StopService(name string) error { return s.stopUnit(name) }

// RestartService is a stop followed by a fresh start.
func (s *Service) RestartService(name string) error { return s.restartUnit(name) }

func (s *Service) startUnit(name string) error {
	s.mu.Lock()
	st, ok := s.units[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown service %q", name)
	}
	if st.proc != nil {
		s.mu.Unlock()
		return fmt.Errorf("service %q is already running", name)
	}
	st.lastCommand = "start"
	st.retries = 0
	err := s.spawnLocked(st)
	s.mu.Unlock()

	s.publishStatus()
	return err
}

func (s *Service) stopUnit(name string) error {
	s.mu.Lock()
	st, ok := s.units[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown service %q", name)
	}
	st.lastCommand = "stop"
	proc := st.proc
	st.proc = nil
	if proc == nil {
		s.setStatusLocked(st, StatusStopped)
		s.mu.Unlock()
		s.publishStatus()
		return nil
	}
	s.setStatusLocked(st, StatusStopping)
	s.mu.Unlock()
	s.publishStatus()

	code := proc.stop()
	s.rt.Log.Info().Str("unit", name).Int("exit_code", code).Msg("service stopped")

	s.mu.Lock()
	s.setStatusLocked(st, StatusStopped)
	s.mu.Unlock()
	s.publishStatus()
	return nil
}

func (s *Service) restartUnit(name string) error {
	if err := s.stopUnit(name); err != nil {
		return err
	}
	return s.startUnit(name)
}

// startAll brings the fleet up. The settings store goes first and gets a
// short warmup so the other services find their settings on first try.
func (s *Service) startAll() {
	s.mu.Lock()
	order := append([]string(nil), s.order...)
	s.mu.Unlock()

	if _, ok := s.units[settings_serv.ServiceName]; ok {
		if err := s.startUnit(settings_serv.ServiceName); err != nil {
			s.rt.Log.Warn().Err(err).Msg("could not start settings service first")
		}
		select {
		case <-s.rt.Context().Done():
			return
		case <-time.After(settingsWarmup):
		}
	}
	for _, name := range order {
		if name == settings_serv.ServiceName {
			continue
		}
		if err := s.startUnit(name); err != nil {
			s.rt.Log.Warn().Err(err).Str("unit", name).Msg("could not start service")
		}
	}
}

// stopAll stops the fleet in reverse start order, the settings store last.
func (s *Service) stopAll() {
	s.mu.Lock()
	order := append([]string(nil), s.order...)
	s.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		if order[i] == settings_serv.ServiceName {
			continue
		}
		_ = s.stopUnit(order[i])
	}
	if _, ok := s.units[settings_serv.ServiceName]; ok {
		_ = s.stopUnit(settings_serv.ServiceName)
	}
}

// monitor reaps exited children. A child that was not asked to stop gets
// restarted until its crash budget runs out.
func (s *Service) monitor() {
	s.mu.Lock()
	changed := false
	for _, name := range s.order {
		st := s.units[name]
		if st.proc == nil {
			continue
		}
		code, ok := st.proc.exited()
		if !ok {
			continue
		}
		st.proc = nil
		changed = true

		if st.lastCommand == "stop" {
			s.setStatusLocked(st, StatusStopped)
			continue
		}

		s.rt.Log.Warn().Str("unit", name).Int("exit_code", code).Msg("service exited unexpectedly")
		s.setStatusLocked(st, StatusCrashed)
		// cap check before counting, so restart_count never exceeds the cap
		if st.retries >= maxRetries {
			s.rt.Log.Error().Str("unit", name).Int("restart_count", st.retries).Msg("crash budget exhausted")
			s.setStatusLocked(st, StatusError)
			continue
		}
		st.retries++
		s.setStatusLocked(st, StatusRestarting)
		if err := s.spawnLocked(st); err != nil {
			s.rt.Log.Error().Err(err).Str("unit", name).Msg("restart failed")
		}
	}
	s.mu.Unlock()

	if changed {
		s.publishStatus()
	}
}

// spawnLocked launches the unit's command; callers hold s.mu.
func (s *Service) spawnLocked(st *unitState) error {
	s.setStatusLocked(st, StatusStarting)
	proc, err := spawn(st.unit)
	if err != nil {
		s.rt.Log.Error().Err(err).Str("unit", st.unit.Name).Msg("spawn failed")
		s.setStatusLocked(st, StatusError)
		return err
	}
	st.proc = proc
	s.setStatusLocked(st, StatusRunning)
	s.rt.Log.Info().Str("unit", st.unit.Name).Int("pid", proc.pid()).Msg("service started")
	return nil
}

func (s *Service) setStatusLocked(st *unitState, to string) {
	if st.status == to {
		return
	}
	if s.journal != nil {
		if err := s.journal.Record(st.unit.Name, st.status, to); err != nil {
			s.rt.Log.Warn().Err(err).Msg("could not journal transition")
		}
	}
	st.status = to
}

// HTTPAddr returns the bound address of the HTTP surface, or "" when it is
// disabled.
func (s *Service) HTTPAddr() string {
	if s.api == nil {
		return ""
	}
	return s.api.Addr()
}

// Snapshot returns the fleet status record published on manager.status.
func (s *Service) Snapshot() codec.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// snapshotLocked reports all_ok only when every unit is running; anything
// else, a deliberate stop included, reads as degraded. The services field is
// a list of named records, which is what the UI sorts and renders.
func (s *Service) snapshotLocked() codec.Record {
	services := make([]codec.Record, 0, len(s.order))
	global := "all_ok"
	for _, name := range s.order {
		st := s.units[name]
		pid := 0
		if st.proc != nil {
			pid = st.proc.pid()
		}
		services = append(services, codec.Record{
			"name":          name,
			"status":        st.status,
			"pid":           pid,
			"restart_count": st.retries,
			"last_command":  st.lastCommand,
		})
		if st.status != StatusRunning {
			global = "degraded"
		}
	}
	return codec.Record{"global_status": global, "services": services}
}

func (s *Service) publishStatus() {
	data, err := codec.Marshal(s.Snapshot())
	if err != nil {
		s.rt.Log.Error().Err(err).Msg("could not encode fleet status")
		return
	}
	if err := s.rt.Client.Publish(StatusSubject, data); err != nil {
		s.rt.Log.Warn().Err(err).Msg("could not publish fleet status")
	}
}

// handleGetStatus publishes a fresh snapshot unconditionally and, when the
// caller asked over request/reply, answers with the same snapshot.
func (s *Service) handleGetStatus(args codec.Record) error {
	snap := s.Snapshot()
	data, err := codec.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.rt.Client.Publish(StatusSubject, data); err != nil {
		return err
	}
	return s.reply(args, snap)
}

func (s *Service) handleGetHistory(args codec.Record) error {
	if s.journal == nil {
		return s.reply(args, codec.Record{"status": "error", "message": "journal disabled"})
	}
	limit := 50
	if v, ok := args.GetFloat("limit"); ok && v > 0 {
		limit = int(v)
	}
	entries, err := s.journal.History(args.GetString("service"), limit)
	if err != nil {
		return s.reply(args, codec.Record{"status": "error", "message": err.Error()})
	}
	return s.reply(args, codec.Record{"status": "ok", "transitions": entries})
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

package manager_serv

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GregAscolab/python-microservice-test/bus"
	"github.com/GregAscolab/python-microservice-test/codec"
	"github.com/GregAscolab/python-microservice-test/pkg/x_log"
	"github.com/GregAscolab/python-microservice-test/runtime"
)

func runTestServer(t *testing.T) *server.Server {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}

func writeUnit(t *testing.T, root, dir string, u Unit) {
	t.Helper()
	d := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(d, 0o755))
	data, err := json.Marshal(u)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(d, UnitFile), data, 0o644))
}

// startManager runs the supervisor against a units directory and returns a
// test bus client plus the service for direct inspection.
func startManager(t *testing.T, cfg Config) (*bus.Client, *Service) {
	t.Helper()
	s := runTestServer(t)

	if cfg.MonitorPeriod == 0 {
		cfg.MonitorPeriod = 50 * time.Millisecond
	}
	svc := New(cfg)
	rt := runtime.New(svc,
		runtime.WithBusURL(s.ClientURL()),
		runtime.WithSkipSettings(),
		runtime.WithLogConfig(&x_log.Config{Level: "error", ToConsole: false, ToFile: false}),
	)
	done := make(chan error, 1)
	go func() { done <- rt.Run() }()
	t.Cleanup(func() {
		rt.Shutdown()
		require.NoError(t, <-done)
	})

	c := bus.New("manager-test", zerolog.Nop())
	require.NoError(t, c.Connect(s.ClientURL()))
	t.Cleanup(c.Disconnect)

	require.Eventually(t, func() bool {
		_, err := c.Request("commands."+ServiceName, []byte(`{"command":"get_status"}`), 300*time.Millisecond)
		return err == nil
	}, 3*time.Second, 50*time.Millisecond)
	return c, svc
}

func command(t *testing.T, c *bus.Client, args codec.Record) codec.Record {
	t.Helper()
	data, err := args.Encode()
	require.NoError(t, err)
	resp, err := c.Request("commands."+ServiceName, data, 10*time.Second)
	require.NoError(t, err)
	result, err := codec.Decode(resp.Data)
	require.NoError(t, err)
	return result
}

// serviceEntry finds one unit's record in the snapshot's services list.
func serviceEntry(t *testing.T, snap codec.Record, name string) codec.Record {
	t.Helper()
	list, ok := snap["services"].([]any)
	require.True(t, ok, "snapshot services is not a list: %v", snap)
	for _, v := range list {
		rec, ok := v.(map[string]any)
		if ok && codec.Record(rec).GetString("name") == name {
			return codec.Record(rec)
		}
	}
	t.Fatalf("no entry for %s: %v", name, list)
	return nil
}

func TestDiscoverUnits(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "b_sleeper", Unit{Name: "sleeper", Cmd: "sleep 60"})
	writeUnit(t, root, "a_gps", Unit{Name: "gps_service", Cmd: "sleep 60", Dir: "data"})
	writeUnit(t, root, "z_manager", Unit{Name: "manager", Cmd: "fabricd manager"})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "no_manifest"), 0o755))

	units, err := DiscoverUnits(root)
	require.NoError(t, err)
	require.Len(t, units, 2)

	// directory order, manager excluded
	assert.Equal(t, "gps_service", units[0].Name)
	assert.Equal(t, filepath.Join(root, "a_gps", "data"), units[0].Dir)
	assert.Equal(t, "sleeper", units[1].Name)
	assert.Equal(t, filepath.Join(root, "b_sleeper"), units[1].Dir)
}

func TestDiscoverUnitsRejectsBadManifest(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "bad", Unit{Name: "bad"})
	_, err := DiscoverUnits(root)
	require.Error(t, err)
}

func TestStartAndStopService(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "sleeper", Unit{Name: "sleeper", Cmd: "sleep 60"})
	c, _ := startManager(t, Config{UnitsDir: root})

	result := command(t, c, codec.Record{"command": "start_service", "service_name": "sleeper"})
	require.Equal(t, "ok", result.GetString("status"))

	snap := command(t, c, codec.Record{"command": "get_status"})
	assert.Equal(t, "all_ok", snap.GetString("global_status"))
	entry := serviceEntry(t, snap, "sleeper")
	assert.Equal(t, StatusRunning, entry.GetString("status"))
	pid, _ := entry.GetFloat("pid")
	assert.Greater(t, pid, 0.0)

	result = command(t, c, codec.Record{"command": "stop_service", "service_name": "sleeper"})
	require.Equal(t, "ok", result.GetString("status"))

	snap = command(t, c, codec.Record{"command": "get_status"})
	entry = serviceEntry(t, snap, "sleeper")
	assert.Equal(t, StatusStopped, entry.GetString("status"))
	assert.Equal(t, "stop", entry.GetString("last_command"))

	// all_ok requires every unit running; a stopped one degrades the fleet
	assert.Equal(t, "degraded", snap.GetString("global_status"))
}

func TestUnknownServiceIsRejected(t *testing.T) {
	c, _ := startManager(t, Config{UnitsDir: t.TempDir()})
	result := command(t, c, codec.Record{"command": "start_service", "service_name": "ghost"})
	assert.Equal(t, "error", result.GetString("status"))
	assert.Contains(t, result.GetString("message"), "ghost")

	// a command naming no unit at all is rejected too
	result = command(t, c, codec.Record{"command": "stop_service"})
	assert.Equal(t, "error", result.GetString("status"))
}

func TestStoppedServiceIsNotResurrected(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "sleeper", Unit{Name: "sleeper", Cmd: "sleep 60"})
	c, _ := startManager(t, Config{UnitsDir: root})

	// "name" is the legacy alias for "service_name"
	command(t, c, codec.Record{"command": "start_service", "name": "sleeper"})
	command(t, c, codec.Record{"command": "stop_service", "name": "sleeper"})

	// give the monitor several cycles to misbehave
	time.Sleep(300 * time.Millisecond)

	snap := command(t, c, codec.Record{"command": "get_status"})
	entry := serviceEntry(t, snap, "sleeper")
	assert.Equal(t, StatusStopped, entry.GetString("status"))
	restarts, _ := entry.GetFloat("restart_count")
	assert.Equal(t, 0.0, restarts)
}

func TestStubbornChildIsKilledNotRestarted(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the full stop grace period")
	}
	root := t.TempDir()
	writeUnit(t, root, "stubborn", Unit{Name: "stubborn", Cmd: `/bin/sh -c "trap '' TERM; sleep 60"`})
	c, _ := startManager(t, Config{UnitsDir: root})

	command(t, c, codec.Record{"command": "start_service", "service_name": "stubborn"})

	// ignores SIGTERM, so stop_service escalates to SIGKILL after the grace
	start := time.Now()
	result := command(t, c, codec.Record{"command": "stop_service", "service_name": "stubborn"})
	require.Equal(t, "ok", result.GetString("status"))
	assert.GreaterOrEqual(t, time.Since(start), stopGrace)

	time.Sleep(300 * time.Millisecond)
	snap := command(t, c, codec.Record{"command": "get_status"})
	assert.Equal(t, StatusStopped, serviceEntry(t, snap, "stubborn").GetString("status"))
}

func TestCrashRestartBudget(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "flaky", Unit{Name: "flaky", Cmd: `/bin/sh -c "exit 7"`})
	c, _ := startManager(t, Config{UnitsDir: root})

	command(t, c, codec.Record{"command": "start_service", "service_name": "flaky"})

	require.Eventually(t, func() bool {
		snap := command(t, c, codec.Record{"command": "get_status"})
		return serviceEntry(t, snap, "flaky").GetString("status") == StatusError
	}, 10*time.Second, 100*time.Millisecond)

	// the counter stops at the cap: three automated restarts, never a fourth
	snap := command(t, c, codec.Record{"command": "get_status"})
	assert.Equal(t, "degraded", snap.GetString("global_status"))
	restarts, _ := serviceEntry(t, snap, "flaky").GetFloat("restart_count")
	assert.Equal(t, float64(maxRetries), restarts)
}

func TestStatusPublishedOnChange(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "sleeper", Unit{Name: "sleeper", Cmd: "sleep 60"})
	c, _ := startManager(t, Config{UnitsDir: root})

	snaps := make(chan codec.Record, 16)
	_, err := c.Subscribe(StatusSubject, func(msg bus.Msg) {
		r, _ := codec.Decode(msg.Data)
		snaps <- r
	})
	require.NoError(t, err)

	command(t, c, codec.Record{"command": "start_service", "service_name": "sleeper"})

	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap := <-snaps:
			if serviceEntry(t, snap, "sleeper").GetString("status") == StatusRunning {
				return
			}
		case <-deadline:
			t.Fatal("no running snapshot published")
		}
	}
}

func TestStartAllStopAll(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "a_settings", Unit{Name: "settings_service", Cmd: "sleep 60"})
	writeUnit(t, root, "b_sleeper", Unit{Name: "sleeper", Cmd: "sleep 60"})
	c, _ := startManager(t, Config{UnitsDir: root})

	result := command(t, c, codec.Record{"command": "start_all"})
	require.Equal(t, "ok", result.GetString("status"))

	snap := command(t, c, codec.Record{"command": "get_status"})
	assert.Equal(t, StatusRunning, serviceEntry(t, snap, "settings_service").GetString("status"))
	assert.Equal(t, StatusRunning, serviceEntry(t, snap, "sleeper").GetString("status"))

	result = command(t, c, codec.Record{"command": "stop_all"})
	require.Equal(t, "ok", result.GetString("status"))

	snap = command(t, c, codec.Record{"command": "get_status"})
	assert.Equal(t, StatusStopped, serviceEntry(t, snap, "settings_service").GetString("status"))
	assert.Equal(t, StatusStopped, serviceEntry(t, snap, "sleeper").GetString("status"))
}

func TestJournalRecordsTransitions(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "sleeper", Unit{Name: "sleeper", Cmd: "sleep 60"})
	c, _ := startManager(t, Config{
		UnitsDir:    root,
		JournalPath: filepath.Join(t.TempDir(), "journal.db"),
	})

	command(t, c, codec.Record{"command": "start_service", "service_name": "sleeper"})
	command(t, c, codec.Record{"command": "stop_service", "service_name": "sleeper"})

	result := command(t, c, codec.Record{"command": "get_history", "service": "sleeper"})
	require.Equal(t, "ok", result.GetString("status"))

	raw, err := codec.Marshal(result["transitions"])
	require.NoError(t, err)
	var transitions []Transition
	require.NoError(t, json.Unmarshal(raw, &transitions))
	require.NotEmpty(t, transitions)

	// newest first: the last recorded transition ends in stopped
	assert.Equal(t, "sleeper", transitions[0].Service)
	assert.Equal(t, StatusStopped, transitions[0].To)

	var tos []string
	for _, tr := range transitions {
		tos = append(tos, tr.To)
	}
	assert.Contains(t, tos, StatusStarting)
	assert.Contains(t, tos, StatusRunning)
}

func TestHTTPControlSurface(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "sleeper", Unit{Name: "sleeper", Cmd: "sleep 60"})
	c, svc := startManager(t, Config{UnitsDir: root, HTTPAddr: "127.0.0.1:0"})
	base := "http://" + svc.HTTPAddr()

	resp, err := http.Post(fmt.Sprintf("%s/api/services/sleeper/start", base), "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/api/status")
	require.NoError(t, err)
	var snap codec.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	assert.Equal(t, StatusRunning, serviceEntry(t, snap, "sleeper").GetString("status"))

	// starting a running service conflicts
	resp, err = http.Post(fmt.Sprintf("%s/api/services/sleeper/start", base), "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Post(fmt.Sprintf("%s/api/services/sleeper/stop", base), "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_ = command(t, c, codec.Record{"command": "get_status"})
}

package compute_serv

import (
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

// startCompute runs the service without a settings store, so the default
// data sources and snapshot interval apply.
func startCompute(t *testing.T, url string) *bus.Client {
	t.Helper()
	rt := runtime.New(New(),
		runtime.WithBusURL(url),
		runtime.WithSkipSettings(),
		runtime.WithLogConfig(&x_log.Config{Level: "error", ToConsole: false, ToFile: false}),
	)
	done := make(chan error, 1)
	go func() { done <- rt.Run() }()
	t.Cleanup(func() {
		rt.Shutdown()
		require.NoError(t, <-done)
	})

	c := bus.New("compute-test", zerolog.Nop())
	require.NoError(t, c.Connect(url))
	t.Cleanup(c.Disconnect)

	require.Eventually(t, func() bool {
		data, _ := codec.Record{"command": "get_available_signals"}.Encode()
		_, err := c.Request("commands."+ServiceName, data, 300*time.Millisecond)
		return err == nil
	}, 3*time.Second, 50*time.Millisecond)
	return c
}

func command(t *testing.T, c *bus.Client, args codec.Record) codec.Record {
	t.Helper()
	data, err := args.Encode()
	require.NoError(t, err)
	resp, err := c.Request("commands."+ServiceName, data, 2*time.Second)
	require.NoError(t, err)
	result, err := codec.Decode(resp.Data)
	require.NoError(t, err)
	return result
}

func TestLifecycleStatusIsPublished(t *testing.T) {
	s := runTestServer(t)

	c := bus.New("status-watch", zerolog.Nop())
	require.NoError(t, c.Connect(s.ClientURL()))
	t.Cleanup(c.Disconnect)

	statuses := make(chan string, 8)
	_, err := c.Subscribe(StatusSubject, func(msg bus.Msg) {
		r, _ := codec.Decode(msg.Data)
		statuses <- r.GetString("status")
	})
	require.NoError(t, err)

	startCompute(t, s.ClientURL())

	expect := func(want string) {
		select {
		case got := <-statuses:
			assert.Equal(t, want, got)
		case <-time.After(3 * time.Second):
			t.Fatalf("no %s status published", want)
		}
	}
	expect("STARTING")
	expect("RUNNING")
}

func TestIngestComputeAndQuerySignals(t *testing.T) {
	s := runTestServer(t)
	c := startCompute(t, s.ClientURL())

	results := make(chan bus.Msg, 8)
	_, err := c.Subscribe("compute.result.>", func(msg bus.Msg) { results <- msg })
	require.NoError(t, err)

	result := command(t, c, codec.Record{
		"command":          "register_computation",
		"source_signal":    "can_data.PF_EngineSpeed",
		"computation_type": "RunningAverage",
		"output_name":      "engine_speed_avg",
	})
	require.Equal(t, "ok", result.GetString("status"))

	sample, _ := codec.Record{"name": "PF_EngineSpeed", "value": 1200.0, "ts": 1000.0}.Encode()
	require.NoError(t, c.Publish("can_data", sample))

	select {
	case msg := <-results:
		assert.Equal(t, "compute.result.engine_speed_avg", msg.Subject)
		r, err := codec.Decode(msg.Data)
		require.NoError(t, err)
		v, ok := r.GetFloat("value")
		require.True(t, ok)
		assert.Equal(t, 1200.0, v)
	case <-time.After(3 * time.Second):
		t.Fatal("no computation result published")
	}

	result = command(t, c, codec.Record{"command": "get_available_signals"})
	require.Equal(t, "ok", result.GetString("status"))
	raw, _ := result["signals"].([]any)
	var signals []string
	for _, v := range raw {
		signals = append(signals, v.(string))
	}
	assert.Contains(t, signals, "can_data.PF_EngineSpeed")
	assert.Contains(t, signals, "engine_speed_avg")
}

func TestPeriodicStateSnapshot(t *testing.T) {
	s := runTestServer(t)
	c := startCompute(t, s.ClientURL())

	snaps := make(chan codec.Record, 4)
	_, err := c.Subscribe("compute.state.full", func(msg bus.Msg) {
		r, _ := codec.Decode(msg.Data)
		snaps <- r
	})
	require.NoError(t, err)

	sample, _ := codec.Record{"name": "speed", "value": 7.0}.Encode()
	require.NoError(t, c.Publish("can_data", sample))

	// default interval is 1s
	select {
	case snap := <-snaps:
		state, ok := snap.GetRecord("computation_state")
		require.True(t, ok)
		v, _ := codec.Record(state).GetFloat("can_data.speed")
		assert.Equal(t, 7.0, v)
		assert.Contains(t, snap, "triggers")
	case <-time.After(3 * time.Second):
		t.Fatal("no state snapshot published")
	}
}

func TestRegisterTriggerOverBus(t *testing.T) {
	s := runTestServer(t)
	c := startCompute(t, s.ClientURL())

	alerts := make(chan codec.Record, 2)
	_, err := c.Subscribe("alerts.overspeed", func(msg bus.Msg) {
		r, _ := codec.Decode(msg.Data)
		alerts <- r
	})
	require.NoError(t, err)

	result := command(t, c, codec.Record{
		"command": "register_trigger",
		"trigger": map[string]any{
			"name": "overspeed",
			"conditions": []any{
				map[string]any{"name": "can_data.speed", "operator": ">", "value": 50},
			},
			"action": map[string]any{
				"on_become_active": map[string]any{"type": "publish", "subject": "alerts.overspeed"},
			},
		},
	})
	require.Equal(t, "ok", result.GetString("status"))

	slow, _ := codec.Record{"name": "speed", "value": 30.0}.Encode()
	fast, _ := codec.Record{"name": "speed", "value": 80.0}.Encode()
	require.NoError(t, c.Publish("can_data", slow))
	require.NoError(t, c.Publish("can_data", fast))

	select {
	case payload := <-alerts:
		assert.Equal(t, "overspeed", payload.GetString("trigger_name"))
	case <-time.After(3 * time.Second):
		t.Fatal("trigger action not published")
	}

	result = command(t, c, codec.Record{"command": "unregister_trigger", "name": "overspeed"})
	assert.Equal(t, "ok", result.GetString("status"))

	result = command(t, c, codec.Record{"command": "register_trigger", "trigger": map[string]any{"name": "bad"}})
	assert.Equal(t, "error", result.GetString("status"))
}

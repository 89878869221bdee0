package runtime

import (
	"time"

	"github.com/GregAscolab/python-microservice-test/bus"
	"github.com/GregAscolab/python-microservice-test/pkg/x_log"
)

// Options tune the service lifecycle.
type Options struct {
	// BusURL is the bootstrap URL for the settings request and the fallback
	// when settings carry no global.nats_url.
	BusURL string

	// SettingsTimeout bounds each settings.get.all request.
	SettingsTimeout time.Duration

	// RetryInterval is the wait between failed settings fetches.
	RetryInterval time.Duration

	// SkipSettings makes the runtime dial BusURL directly without fetching
	// settings first. The supervisor needs this: the settings service is one
	// of its own children.
	SkipSettings bool

	// LogConfig overrides the logger configuration (nil loads xlog.json).
	LogConfig *x_log.Config
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		BusURL:          bus.DefaultURL,
		SettingsTimeout: 2 * time.Second,
		RetryInterval:   3 * time.Second,
	}
}

// WithBusURL sets the bootstrap bus URL.
func WithBusURL(url string) Option {
	return func(o *Options) { o.BusURL = url }
}

// WithSettingsTimeout sets the per-request settings timeout.
func WithSettingsTimeout(d time.Duration) Option {
	return func(o *Options) { o.SettingsTimeout = d }
}

// WithRetryInterval sets the wait between settings fetch attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(o *Options) { o.RetryInterval = d }
}

// WithSkipSettings connects directly without a settings fetch.
func WithSkipSettings() Option {
	return func(o *Options) { o.SkipSettings = true }
}

// WithLogConfig overrides the logger configuration.
func WithLogConfig(cfg *x_log.Config) Option {
	return func(o *Options) { o.LogConfig = cfg }
}

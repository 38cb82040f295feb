package extension

import (
	dispatch "github.com/hookline/dispatch"
)

// Config holds configuration for the dispatch Forge extension.
// Fields can be set programmatically via ExtOption functions; the json, yaml
// and mapstructure tags let a caller decode it. The package reads no
// configuration file itself.
type Config struct {
	// Config embeds the core dispatch configuration.
	dispatch.Config `json:",inline" yaml:",inline" mapstructure:",squash"`

	// BasePath is the URL prefix for all dispatch routes (default: "/webhooks").
	BasePath string `json:"base_path" yaml:"base_path" mapstructure:"base_path"`

	// DisableRoutes is set by WithDisableRoutes. The package registers no
	// routes, so nothing in it reads this flag.
	DisableRoutes bool `json:"disable_routes" yaml:"disable_routes" mapstructure:"disable_routes"`

	// DisableMigrate disables the database migration that Init runs.
	DisableMigrate bool `json:"disable_migrate" yaml:"disable_migrate" mapstructure:"disable_migrate"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Config:   dispatch.DefaultConfig(),
		BasePath: "/webhooks",
	}
}

// ToDispatchOptions converts the embedded Config into dispatch.Option values.
func (c Config) ToDispatchOptions() []dispatch.Option {
	var opts []dispatch.Option

	if c.Concurrency > 0 {
		opts = append(opts, dispatch.WithConcurrency(c.Concurrency))
	}
	if c.PollInterval > 0 {
		opts = append(opts, dispatch.WithPollInterval(c.PollInterval))
	}
	if c.BatchSize > 0 {
		opts = append(opts, dispatch.WithBatchSize(c.BatchSize))
	}
	if c.RequestTimeout > 0 {
		opts = append(opts, dispatch.WithRequestTimeout(c.RequestTimeout))
	}
	if c.MaxAttempts > 0 {
		opts = append(opts, dispatch.WithMaxAttempts(c.MaxAttempts))
	}
	if len(c.BackoffSchedule) > 0 {
		opts = append(opts, dispatch.WithBackoffSchedule(c.BackoffSchedule))
	}
	if c.RetentionWindow > 0 {
		opts = append(opts, dispatch.WithRetentionWindow(c.RetentionWindow))
	}
	if c.CleanupInterval > 0 {
		opts = append(opts, dispatch.WithCleanupInterval(c.CleanupInterval))
	}
	if c.SubscriptionCacheTTL > 0 {
		opts = append(opts, dispatch.WithSubscriptionCacheTTL(c.SubscriptionCacheTTL))
	}
	if c.ShutdownTimeout > 0 {
		opts = append(opts, dispatch.WithShutdownTimeout(c.ShutdownTimeout))
	}

	return opts
}

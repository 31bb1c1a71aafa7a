package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	watch   bool
	sync    bool
	version string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithWatch starts the filesystem watcher alongside the HTTP server,
// regardless of the watch.enabled config setting.
func WithWatch(enabled bool) Option {
	return func(a *application) {
		a.watch = enabled
	}
}

// WithSyncOnStart runs an incremental reindex before serving, regardless
// of the watch.sync_on_start config setting.
func WithSyncOnStart(enabled bool) Option {
	return func(a *application) {
		a.sync = enabled
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

func newApplication(opts []Option) *application {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

package internal

// Option is a functional option applied by Run and RunMCP before the
// vault stack is built.
type Option func(*application)

type application struct {
	config *Config
}

// WithConfig overrides the default configuration, typically with one
// loaded from the YAML file named on the command line.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

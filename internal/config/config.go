package config

// Config is the top-level configuration structure mapping to w3rt.toml.
type Config struct {
	Runtime  RuntimeConfig            `toml:"runtime"`
	Networks map[string]NetworkConfig `toml:"networks"`
	Logging  LoggingConfig            `toml:"logging"`
}

// RuntimeConfig maps to the [runtime] section in w3rt.toml.
type RuntimeConfig struct {
	TraceDir     string `toml:"trace_dir"`
	WorkflowsDir string `toml:"workflows_dir"`
	Policy       string `toml:"policy"`
}

// NetworkConfig maps to a [networks.<name>] section in w3rt.toml. A network
// that is configured but not enabled stays visible to tooling (explain,
// policy eval) without being reachable by runs.
type NetworkConfig struct {
	RPCURL  string `toml:"rpc_url"`
	Enabled bool   `toml:"enabled"`
}

// LoggingConfig maps to the [logging] section in w3rt.toml.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

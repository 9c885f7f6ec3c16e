package config

// NewDefaults returns a Config populated with all default values. Out of the
// box only the local sandbox network is enabled, so nothing can reach a real
// chain until an operator writes a config that says otherwise.
func NewDefaults() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			TraceDir:     ".w3rt/trace",
			WorkflowsDir: "workflows",
			Policy:       "policy.json",
		},
		Networks: map[string]NetworkConfig{
			"sandbox": {RPCURL: "sandbox://local", Enabled: true},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

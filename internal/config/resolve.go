package config

// ConfigSource identifies where a configuration value came from.
type ConfigSource string

const (
	// SourceDefault indicates the value came from built-in defaults.
	SourceDefault ConfigSource = "default"
	// SourceFile indicates the value came from the w3rt.toml config file.
	SourceFile ConfigSource = "file"
	// SourceEnv indicates the value came from an environment variable.
	SourceEnv ConfigSource = "env"
	// SourceCLI indicates the value came from a CLI flag.
	SourceCLI ConfigSource = "cli"
)

// ResolvedConfig holds the fully-resolved configuration with source tracking.
// The Config field contains the merged values; Sources tracks where each came from.
type ResolvedConfig struct {
	Config  *Config
	Sources map[string]ConfigSource // key is dotted path, e.g., "runtime.trace_dir"
	Path    string                  // path to the config file used (empty if none)
}

// CLIOverrides captures flag values that can override configuration.
// Nil values mean "not set" (do not override). A *string that is nil
// means "not overridden"; a *string pointing to "" means "override to empty string."
type CLIOverrides struct {
	TraceDir     *string
	WorkflowsDir *string
	Policy       *string
	LogLevel     *string
	LogFormat    *string
}

// EnvFunc is a function that looks up environment variables.
// Default implementation is os.LookupEnv. Injected for testability.
type EnvFunc func(key string) (string, bool)

// Resolve merges configuration from all sources in priority order:
// CLI flags > environment variables > config file > defaults.
//
// Parameters:
//   - defaults: built-in default config (from NewDefaults())
//   - fileConfig: parsed config from w3rt.toml (nil if no file found)
//   - envFn: function to look up environment variables
//   - overrides: CLI flag values (nil fields mean "not set")
//
// Returns the fully-resolved config with source annotations.
func Resolve(defaults *Config, fileConfig *Config, envFn EnvFunc, overrides *CLIOverrides) *ResolvedConfig {
	rc := &ResolvedConfig{
		Config:  &Config{},
		Sources: make(map[string]ConfigSource),
	}

	// Ensure we have a valid defaults to start from.
	if defaults == nil {
		defaults = &Config{}
	}

	// Ensure we have a valid envFn.
	if envFn == nil {
		envFn = func(string) (string, bool) { return "", false }
	}

	// Ensure we have a valid overrides.
	if overrides == nil {
		overrides = &CLIOverrides{}
	}

	// Layer 1: Start with defaults as the base.
	resolveRuntimeFromDefaults(rc, defaults)
	resolveLoggingFromDefaults(rc, defaults)
	resolveNetworksFromDefaults(rc, defaults)

	// Layer 2: Merge file config on top (non-zero string values override; maps merge keys).
	if fileConfig != nil {
		resolveRuntimeFromFile(rc, fileConfig)
		resolveLoggingFromFile(rc, fileConfig)
		resolveNetworksFromFile(rc, fileConfig)
	}

	// Layer 3: Merge environment variables on top.
	resolveFromEnv(rc, envFn)

	// Layer 4: Merge CLI overrides on top.
	resolveFromCLI(rc, overrides)

	return rc
}

// --- Layer 1: Defaults ---

func resolveRuntimeFromDefaults(rc *ResolvedConfig, defaults *Config) {
	r := &rc.Config.Runtime
	d := &defaults.Runtime

	setString(&r.TraceDir, d.TraceDir, "runtime.trace_dir", SourceDefault, rc.Sources)
	setString(&r.WorkflowsDir, d.WorkflowsDir, "runtime.workflows_dir", SourceDefault, rc.Sources)
	setString(&r.Policy, d.Policy, "runtime.policy", SourceDefault, rc.Sources)
}

func resolveLoggingFromDefaults(rc *ResolvedConfig, defaults *Config) {
	l := &rc.Config.Logging
	d := &defaults.Logging

	setString(&l.Level, d.Level, "logging.level", SourceDefault, rc.Sources)
	setString(&l.Format, d.Format, "logging.format", SourceDefault, rc.Sources)
}

func resolveNetworksFromDefaults(rc *ResolvedConfig, defaults *Config) {
	rc.Config.Networks = make(map[string]NetworkConfig)
	for name, network := range defaults.Networks {
		rc.Config.Networks[name] = network
		rc.Sources["networks."+name] = SourceDefault
	}
}

// --- Layer 2: File ---

func resolveRuntimeFromFile(rc *ResolvedConfig, file *Config) {
	r := &rc.Config.Runtime
	f := &file.Runtime

	mergeString(&r.TraceDir, f.TraceDir, "runtime.trace_dir", SourceFile, rc.Sources)
	mergeString(&r.WorkflowsDir, f.WorkflowsDir, "runtime.workflows_dir", SourceFile, rc.Sources)
	mergeString(&r.Policy, f.Policy, "runtime.policy", SourceFile, rc.Sources)
}

func resolveLoggingFromFile(rc *ResolvedConfig, file *Config) {
	l := &rc.Config.Logging
	f := &file.Logging

	mergeString(&l.Level, f.Level, "logging.level", SourceFile, rc.Sources)
	mergeString(&l.Format, f.Format, "logging.format", SourceFile, rc.Sources)
}

func resolveNetworksFromFile(rc *ResolvedConfig, file *Config) {
	// File network entries replace whole entries so an explicit
	// enabled = false in the file wins over an enabled default.
	for name, network := range file.Networks {
		rc.Config.Networks[name] = network
		rc.Sources["networks."+name] = SourceFile
	}
}

// --- Layer 3: Environment ---

// Environment variable mapping:
//
//	W3RT_TRACE_DIR      -> runtime.trace_dir
//	W3RT_WORKFLOWS_DIR  -> runtime.workflows_dir
//	W3RT_POLICY         -> runtime.policy
//	W3RT_LOG_LEVEL      -> logging.level
//	W3RT_LOG_FORMAT     -> logging.format
func resolveFromEnv(rc *ResolvedConfig, envFn EnvFunc) {
	r := &rc.Config.Runtime
	l := &rc.Config.Logging

	if val, ok := envFn("W3RT_TRACE_DIR"); ok {
		r.TraceDir = val
		rc.Sources["runtime.trace_dir"] = SourceEnv
	}
	if val, ok := envFn("W3RT_WORKFLOWS_DIR"); ok {
		r.WorkflowsDir = val
		rc.Sources["runtime.workflows_dir"] = SourceEnv
	}
	if val, ok := envFn("W3RT_POLICY"); ok {
		r.Policy = val
		rc.Sources["runtime.policy"] = SourceEnv
	}
	if val, ok := envFn("W3RT_LOG_LEVEL"); ok {
		l.Level = val
		rc.Sources["logging.level"] = SourceEnv
	}
	if val, ok := envFn("W3RT_LOG_FORMAT"); ok {
		l.Format = val
		rc.Sources["logging.format"] = SourceEnv
	}
}

// --- Layer 4: CLI overrides ---

func resolveFromCLI(rc *ResolvedConfig, overrides *CLIOverrides) {
	r := &rc.Config.Runtime
	l := &rc.Config.Logging

	if overrides.TraceDir != nil {
		r.TraceDir = *overrides.TraceDir
		rc.Sources["runtime.trace_dir"] = SourceCLI
	}
	if overrides.WorkflowsDir != nil {
		r.WorkflowsDir = *overrides.WorkflowsDir
		rc.Sources["runtime.workflows_dir"] = SourceCLI
	}
	if overrides.Policy != nil {
		r.Policy = *overrides.Policy
		rc.Sources["runtime.policy"] = SourceCLI
	}
	if overrides.LogLevel != nil {
		l.Level = *overrides.LogLevel
		rc.Sources["logging.level"] = SourceCLI
	}
	if overrides.LogFormat != nil {
		l.Format = *overrides.LogFormat
		rc.Sources["logging.format"] = SourceCLI
	}
}

// --- Helpers ---

// setString unconditionally sets the target to the given value and records the source.
func setString(target *string, value string, path string, source ConfigSource, sources map[string]ConfigSource) {
	*target = value
	sources[path] = source
}

// mergeString overwrites the target only if value is non-empty (non-zero string).
// For file-layer merging, an empty string in the file means "not set in file",
// so it does not override the default.
func mergeString(target *string, value string, path string, source ConfigSource, sources map[string]ConfigSource) {
	if value != "" {
		*target = value
		sources[path] = source
	}
}

package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/w3rt/w3rt/internal/chain"
	"github.com/w3rt/w3rt/internal/config"
	"github.com/w3rt/w3rt/internal/tool"
	"github.com/w3rt/w3rt/internal/trace"
)

// loadAndResolveConfig loads and resolves the configuration from all sources
// (file, env, CLI flags). It returns the resolved config, the TOML metadata
// (nil when no file was found), and any loading error.
//
// When flagConfig is set, that path is used directly. Otherwise,
// config.FindConfigFile searches upward from the current directory. Every
// command works without a config file; the file only supplies defaults.
func loadAndResolveConfig() (*config.ResolvedConfig, *toml.MetaData, error) {
	var (
		fileCfg *config.Config
		meta    *toml.MetaData
		cfgPath string
	)

	if flagConfig != "" {
		// Explicit --config path provided.
		cfgPath = flagConfig
		fc, md, err := config.LoadFromFile(cfgPath)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
		fileCfg = fc
		meta = &md
	} else {
		// Auto-detect w3rt.toml by walking up from cwd.
		found, err := config.FindConfigFile(".")
		if err != nil {
			return nil, nil, fmt.Errorf("finding config file: %w", err)
		}
		if found != "" {
			cfgPath = found
			fc, md, err := config.LoadFromFile(cfgPath)
			if err != nil {
				return nil, nil, fmt.Errorf("loading config: %w", err)
			}
			fileCfg = fc
			meta = &md
		}
	}

	resolved := config.Resolve(config.NewDefaults(), fileCfg, os.LookupEnv, nil)
	resolved.Path = cfgPath

	return resolved, meta, nil
}

// openTraceStore returns the trace store for query and run commands. An
// explicit --trace-dir override wins over the resolved config value.
func openTraceStore(resolved *config.ResolvedConfig, override string) *trace.Store {
	dir := override
	if dir == "" {
		dir = resolved.Config.Runtime.TraceDir
	}
	return trace.NewStore(dir)
}

// sandboxRegistry builds the tool registry run commands execute against. The
// sandbox driver is deterministic and never touches a real chain, which makes
// it the only registry the CLI ships; real drivers are wired by embedding
// hosts.
func sandboxRegistry() *tool.Registry {
	return tool.Sandbox(chain.NewSandbox())
}

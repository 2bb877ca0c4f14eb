package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix prefixes every environment variable read by the loader.
// A double underscore separates nested keys: PXSORT_SORT__KEY=hue.
const EnvPrefix = "PXSORT_"

var configNames = []string{"pxsort.yaml", "pxsort.yml"}

// flagKeys maps flag names onto config keys where they differ from the
// kebab-to-snake default.
var flagKeys = map[string]string{
	"key":            "sort.key",
	"coefficients":   "sort.coefficients",
	"direction":      "sort.direction",
	"interval":       "sort.interval",
	"progressive":    "sort.progressive",
	"discretize":     "sort.discretize",
	"reverse":        "sort.reverse",
	"shuffle":        "sort.shuffle",
	"splice":         "sort.splice",
	"threshold":      "sort.threshold",
	"edge-threshold": "sort.edge_threshold",
	"channel":        "sort.channel",
	"seed":           "sort.seed",
	"workers":        "sort.workers",
	"mask":           "sort.mask",
	"key-script":     "sort.key_script",
	"quality":        "sort.quality",
	"animate":        "animate.frames",
	"frame-delay":    "animate.delay",
	"host":           "serve.host",
	"port":           "serve.port",
	"debounce":       "watch.debounce",
	"state":          "state_path",
}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

// defaults are the lowest layer. Built-in presets live here so a config
// file can add to them or redefine them.
func defaults() map[string]any {
	return map[string]any{
		"verbose":    false,
		"output":     DefaultOutput,
		"state_path": "",
		"no_history": false,
		"preset":     "",

		"sort.key":        "luma",
		"sort.direction":  "horizontal",
		"sort.discretize": 1,

		"animate.frames": 0,
		"animate.delay":  DefaultDelay,

		"serve.host": DefaultHost,
		"serve.port": DefaultPort,

		"watch.debounce": DefaultDebounce.String(),

		"presets.streaks.interval":    80,
		"presets.streaks.progressive": 40,
		"presets.streaks.threshold":   "60,200",

		"presets.melt.direction":      "vertical",
		"presets.melt.reverse":        true,
		"presets.melt.edge_threshold": 40,

		"presets.hue-bands.key":        "hue",
		"presets.hue-bands.discretize": 16,
	}
}

// findConfigUpward searches upward from startDir for a pxsort config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findConfigUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return ""
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > preset > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")
	configFileUsed = ""

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	if cfgFile == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfgFile = findConfigUpward(cwd)
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		configFileUsed = cfgFile
	}

	// 3. Load environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Apply the selected preset over the sort section
	preset := k.String("preset")
	if flags != nil && flags.Changed("preset") {
		preset, _ = flags.GetString("preset")
	}
	if preset != "" {
		if err := applyPreset(preset); err != nil {
			return nil, err
		}
	}

	// 5. Load flags (highest priority - overrides everything else)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				// Transform kebab-case to snake_case for config keys
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 6. Unmarshal into Config struct
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Preset = preset

	// 7. Resolve paths relative to the config file's directory
	baseDir := "."
	if configFileUsed != "" {
		if abs, err := filepath.Abs(configFileUsed); err == nil {
			baseDir = filepath.Dir(abs)
		}
	}
	if cfg.StatePath == "" {
		cfg.StatePath = defaultStatePath()
	} else if flags == nil || !flags.Changed("state") {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, baseDir)
	}
	if flags == nil || !flags.Changed("mask") {
		cfg.Sort.Mask = resolvePathRelativeTo(cfg.Sort.Mask, baseDir)
	}
	if flags == nil || !flags.Changed("key-script") {
		cfg.Sort.KeyScript = resolvePathRelativeTo(cfg.Sort.KeyScript, baseDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// applyPreset merges presets.<name> into the sort section.
func applyPreset(name string) error {
	path := "presets." + name
	if !k.Exists(path) {
		available := k.MapKeys("presets")
		slices.Sort(available)
		return fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(available, ", "))
	}

	values := map[string]any{}
	for key, val := range k.Cut(path).All() {
		values["sort."+key] = val
	}
	if err := k.Load(confmap.Provider(values, "."), nil); err != nil {
		return fmt.Errorf("failed to apply preset %q: %w", name, err)
	}
	return nil
}

// defaultStatePath places the history database in the user cache
// directory, falling back to the working directory.
func defaultStatePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "pxsort", DefaultStateFile)
	}
	return filepath.Join(".pxsort", DefaultStateFile)
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "." {
		return path
	}
	return filepath.Join(baseDir, path)
}

// GetCurrentConfig returns the currently loaded configuration.
// Returns nil if no config has been loaded yet.
func GetCurrentConfig() *Config {
	return currentConfig
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

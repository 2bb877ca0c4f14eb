package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/pxsort/internal/pixel"
	"github.com/leapstack-labs/pxsort/internal/sorter"
)

// testFlags mirrors the sort flags registered by the CLI.
func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP("key", "k", "", "")
	fs.IntP("interval", "i", 0, "")
	fs.StringP("direction", "d", "", "")
	fs.BoolP("reverse", "r", false, "")
	fs.String("threshold", "", "")
	fs.String("coefficients", "", "")
	fs.String("preset", "", "")
	fs.String("state", "", "")
	fs.Int("animate", 0, "")
	fs.Duration("debounce", 0, "")
	fs.StringP("output", "o", "", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	ResetConfig()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "pxsort.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, pixel.KeyLuma, cfg.Sort.Key)
	assert.Equal(t, sorter.Horizontal, cfg.Sort.Direction)
	assert.Equal(t, 1, cfg.Sort.Discretize)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Equal(t, DefaultPort, cfg.Serve.Port)
	assert.Equal(t, DefaultDebounce, cfg.Watch.Debounce)
	assert.NotEmpty(t, cfg.StatePath)
	assert.Nil(t, cfg.AnimateParams())
	assert.Contains(t, cfg.Presets, "streaks")
	assert.Empty(t, GetConfigFileUsed())
}

func TestLoadConfig_FileFoundUpward(t *testing.T) {
	dir := chdirTemp(t)
	writeConfig(t, dir, `
output: json
state_path: data/history.db
sort:
  key: hue
  interval: 30
  coefficients: "0.3,0.6,0.1"
  mask: masks/sky.png
watch:
  debounce: 1s
`)
	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	t.Chdir(sub)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, pixel.KeyHue, cfg.Sort.Key)
	assert.Equal(t, 30, cfg.Sort.Interval)
	assert.Equal(t, pixel.Coefficients{R: 0.3, G: 0.6, B: 0.1}, cfg.Sort.Coefficients)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, filepath.Join(dir, "data", "history.db"), cfg.StatePath)
	assert.Equal(t, filepath.Join(dir, "masks", "sky.png"), cfg.Sort.Mask)
	assert.Equal(t, filepath.Join(dir, "pxsort.yaml"), GetConfigFileUsed())
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("sort:\n  direction: vertical\n"), 0o600))

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, sorter.Vertical, cfg.Sort.Direction)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadConfig_Env(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PXSORT_SORT__KEY", "chroma")
	t.Setenv("PXSORT_SORT__REVERSE", "true")
	t.Setenv("PXSORT_VERBOSE", "true")
	t.Setenv("PXSORT_SERVE__PORT", "9000")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, pixel.KeyChroma, cfg.Sort.Key)
	assert.True(t, cfg.Sort.Reverse)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 9000, cfg.Serve.Port)
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	dir := chdirTemp(t)
	writeConfig(t, dir, "sort:\n  key: hue\n  interval: 30\n")
	t.Setenv("PXSORT_SORT__INTERVAL", "40")

	flags := testFlags(t, "-k", "red", "--threshold", "10,200", "--state", "h.db", "--debounce", "50ms")
	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, pixel.KeyRed, cfg.Sort.Key)
	assert.Equal(t, 40, cfg.Sort.Interval, "env beats file when no flag is set")
	assert.Equal(t, "10,200", cfg.Sort.Threshold)
	assert.Equal(t, "h.db", cfg.StatePath, "flag paths stay relative to the working directory")
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoadConfig_Presets(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		args    []string
		check   func(t *testing.T, cfg *Config)
		wantErr string
	}{
		{
			name: "built-in preset",
			args: []string{"--preset", "melt"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, sorter.Vertical, cfg.Sort.Direction)
				assert.True(t, cfg.Sort.Reverse)
				assert.Equal(t, "melt", cfg.Preset)
			},
		},
		{
			name: "flags beat preset",
			args: []string{"--preset", "melt", "-d", "horizontal"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, sorter.Horizontal, cfg.Sort.Direction)
				assert.True(t, cfg.Sort.Reverse)
			},
		},
		{
			name: "preset selected in file",
			file: "preset: mine\npresets:\n  mine:\n    key: saturation\n    interval: 12\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, pixel.KeySaturation, cfg.Sort.Key)
				assert.Equal(t, 12, cfg.Sort.Interval)
			},
		},
		{
			name:    "unknown preset",
			args:    []string{"--preset", "nope"},
			wantErr: `unknown preset "nope"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := chdirTemp(t)
			if tt.file != "" {
				writeConfig(t, dir, tt.file)
			}
			cfg, err := LoadConfig("", testFlags(t, tt.args...))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"--key", "warmth"}},
		{"bad coefficients", []string{"--coefficients", "1,2"}},
		{"bad threshold", []string{"--threshold", "200,10"}},
		{"bad output", []string{"-o", "xml"}},
		{"too few frames", []string{"--animate", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			_, err := LoadConfig("", testFlags(t, tt.args...))
			assert.Error(t, err)
		})
	}
}

func TestSortConfig_Options(t *testing.T) {
	sc := SortConfig{
		Key:       pixel.KeyBlue,
		Interval:  25,
		Reverse:   true,
		Threshold: "5,250",
		Channel:   pixel.ChannelGreen,
		Seed:      9,
	}
	opts, err := sc.Options()
	require.NoError(t, err)
	assert.Equal(t, pixel.KeyBlue, opts.Key)
	assert.Equal(t, 25, opts.Interval)
	assert.True(t, opts.Reverse)
	assert.Equal(t, &sorter.Range{Lo: 5, Hi: 250}, opts.Threshold)
	assert.Equal(t, pixel.ChannelGreen, opts.Channel)
	assert.Equal(t, int64(9), opts.Seed)
	assert.Equal(t, 1, opts.Discretize)
	assert.Equal(t, sorter.Horizontal, opts.Direction)

	_, err = SortConfig{Threshold: "x"}.Options()
	assert.ErrorIs(t, err, sorter.ErrInvalidOptions)

	// The key name is ignored when a script supplies the key.
	_, err = SortConfig{Key: "custom", KeyScript: "key.star"}.Options()
	assert.NoError(t, err)
}

func TestAnimateParams(t *testing.T) {
	cfg := &Config{Animate: AnimateConfig{Frames: 10}}
	p := cfg.AnimateParams()
	require.NotNil(t, p)
	assert.Equal(t, 10, p.Frames)
	assert.Equal(t, DefaultDelay, p.Delay)
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))
}

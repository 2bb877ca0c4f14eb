package keyscript

import (
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndEval(t *testing.T) {
	s, err := Parse("spread.star", []byte(`
def key(r, g, b):
    return max(r, g, b) - min(r, g, b)
`))
	require.NoError(t, err)

	k, err := s.Eval(color.RGBA{10, 200, 50, 255})
	require.NoError(t, err)
	assert.Equal(t, uint8(190), k)
}

func TestClamping(t *testing.T) {
	tests := []struct {
		name string
		body string
		want uint8
	}{
		{"above range", "return r * 10", 255},
		{"below range", "return -r", 0},
		{"float", "return r / 2", 50},
		{"huge int", "return r * 100000000000000000000", 255},
		{"bool", "return r > 0", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse("t.star", []byte("def key(r, g, b):\n    "+tt.body+"\n"))
			require.NoError(t, err)
			k, err := s.Eval(color.RGBA{100, 0, 0, 255})
			require.NoError(t, err)
			assert.Equal(t, tt.want, k)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", "def key(:\n", "Starlark execution error"},
		{"missing", "x = 1\n", "does not define key"},
		{"not callable", "key = 3\n", "not a function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.star", []byte(tt.src))
			require.Error(t, err)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestKeyFuncCachesAndReportsErrors(t *testing.T) {
	s, err := Parse("div.star", []byte(`
def key(r, g, b):
    return 255 // r
`))
	require.NoError(t, err)

	k := s.NewKeyer()
	fn := k.KeyFunc()
	assert.Equal(t, uint8(51), fn(color.RGBA{5, 0, 0, 255}))
	assert.Equal(t, uint8(51), fn(color.RGBA{5, 0, 0, 255}))
	require.NoError(t, k.Err())

	assert.Equal(t, uint8(0), fn(color.RGBA{0, 0, 0, 255}))
	require.Error(t, k.Err())
	assert.Contains(t, k.Err().Error(), "div.star")

	// A later keyer starts clean and shares the cache.
	next := s.NewKeyer()
	assert.Equal(t, uint8(51), next.KeyFunc()(color.RGBA{5, 0, 0, 255}))
	assert.NoError(t, next.Err())
	assert.Error(t, k.Err())
}

func TestKeyFuncConcurrent(t *testing.T) {
	s, err := Parse("sum.star", []byte("def key(r, g, b):\n    return (r + g + b) // 3\n"))
	require.NoError(t, err)
	k := s.NewKeyer()
	fn := k.KeyFunc()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 256; i++ {
				v := uint8(i)
				assert.Equal(t, v, fn(color.RGBA{v, v, v, 255}))
			}
		}()
	}
	wg.Wait()
	assert.NoError(t, k.Err())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "green.star")
	require.NoError(t, os.WriteFile(path, []byte("def key(r, g, b):\n    return g\n"), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Name())

	_, err = Load(filepath.Join(t.TempDir(), "missing.star"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}

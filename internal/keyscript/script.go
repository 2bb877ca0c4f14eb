// Package keyscript lets users define sort keys in Starlark.
//
// A key script must define a function key(r, g, b) that returns a number;
// the result is clamped to 0..255:
//
//	def key(r, g, b):
//	    return max(r, g, b) - min(r, g, b)
package keyscript

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/pxsort/internal/pixel"
)

// FuncName is the function a script must define.
const FuncName = "key"

// Script is a loaded key script. It is safe for concurrent use.
type Script struct {
	name string
	fn   starlark.Callable
	pool *threadPool

	mu    sync.RWMutex
	cache map[uint32]uint8
}

// Load reads and executes the script at path.
func Load(path string) (*Script, error) {
	src, err := os.ReadFile(path) //nolint:gosec // G304: script path comes from the user
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}
	return Parse(path, src)
}

// Parse executes src and looks up its key function.
func Parse(name string, src []byte) (*Script, error) {
	thread := &starlark.Thread{
		Name:  "load:" + filepath.Base(name),
		Print: func(_ *starlark.Thread, _ string) {},
	}

	globals, err := starlark.ExecFile(thread, name, src, nil) //nolint:staticcheck // SA1019: will migrate to ExecFileOptions later
	if err != nil {
		return nil, &LoadError{File: name, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}

	v, ok := globals[FuncName]
	if !ok {
		return nil, &LoadError{File: name, Message: fmt.Sprintf("script does not define %s(r, g, b)", FuncName)}
	}
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, &LoadError{File: name, Message: fmt.Sprintf("%s is a %s, not a function", FuncName, v.Type())}
	}

	return &Script{
		name:  name,
		fn:    fn,
		pool:  newThreadPool(0),
		cache: make(map[uint32]uint8),
	}, nil
}

// Name returns the script path or name it was parsed with.
func (s *Script) Name() string { return s.name }

// Eval computes the key of c, bypassing the cache.
func (s *Script) Eval(c color.RGBA) (uint8, error) {
	thread := s.pool.get("key:" + filepath.Base(s.name))
	defer s.pool.put(thread)

	args := starlark.Tuple{starlark.MakeInt(int(c.R)), starlark.MakeInt(int(c.G)), starlark.MakeInt(int(c.B))}
	res, err := starlark.Call(thread, s.fn, args, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s.name, err)
	}
	return toKey(res)
}

// Keyer is one job's use of a script. Results are memoised per colour on
// the shared Script; evaluation errors are kept per Keyer so one failing
// job does not fail the next.
type Keyer struct {
	script *Script

	mu  sync.Mutex
	err error
}

// NewKeyer returns a Keyer with an empty error slot.
func (s *Script) NewKeyer() *Keyer {
	return &Keyer{script: s}
}

// KeyFunc adapts the script to a pixel.KeyFunc. Evaluation errors yield 0
// and are reported by Err.
func (k *Keyer) KeyFunc() pixel.KeyFunc {
	s := k.script
	return func(c color.RGBA) uint8 {
		id := uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)

		s.mu.RLock()
		v, ok := s.cache[id]
		s.mu.RUnlock()
		if ok {
			return v
		}

		v, err := s.Eval(c)
		if err != nil {
			k.mu.Lock()
			if k.err == nil {
				k.err = err
			}
			k.mu.Unlock()
			return 0
		}

		s.mu.Lock()
		s.cache[id] = v
		s.mu.Unlock()
		return v
	}
}

// Err returns the first evaluation error seen by this Keyer's KeyFunc.
func (k *Keyer) Err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.err
}

func toKey(v starlark.Value) (uint8, error) {
	var n int
	switch x := v.(type) {
	case starlark.Int:
		i, ok := x.Int64()
		if !ok {
			i = 255
			if x.Sign() < 0 {
				i = 0
			}
		}
		n = int(max(min(i, 255), 0))
	case starlark.Float:
		n = int(max(min(float64(x), 255), 0))
	case starlark.Bool:
		if x {
			n = 1
		}
	default:
		return 0, fmt.Errorf("%s() must return a number, got %s", FuncName, v.Type())
	}
	return uint8(n), nil
}

// LoadError is returned when a script cannot be loaded.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("key script %s: %s", filepath.Base(e.File), e.Message)
}

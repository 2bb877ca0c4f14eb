package engine

import (
	"context"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/pxsort/internal/animate"
	"github.com/leapstack-labs/pxsort/internal/imageio"
	"github.com/leapstack-labs/pxsort/internal/pixel"
	"github.com/leapstack-labs/pxsort/internal/sorter"
	"github.com/leapstack-labs/pxsort/internal/state"
	"github.com/leapstack-labs/pxsort/internal/testutil"
)

func redOptions() sorter.Options {
	opts := sorter.DefaultOptions()
	opts.Key = pixel.KeyRed
	opts.Seed = 42
	return opts
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testutil.NewTestLogger(t)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func memoryStore(t *testing.T) *state.SQLiteStore {
	t.Helper()
	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestProcess_SortsAndRecords(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WritePNG(t, dir, "in.png", testutil.Noise(32, 16, 3))
	out := filepath.Join(dir, "out", "in-edited.png")

	store := memoryStore(t)
	e := newTestEngine(t, Config{Sort: redOptions(), Store: store})

	var calls int
	res, err := e.Process(context.Background(), Job{Input: in, Output: out}, func(done, total int) {
		calls++
		assert.Equal(t, 16, total)
	})
	require.NoError(t, err)

	assert.Equal(t, 32, res.Width)
	assert.Equal(t, 16, res.Height)
	assert.Equal(t, int64(32*16), res.Stats.Pixels)
	assert.Equal(t, int64(42), res.Stats.Seed)
	assert.Equal(t, 16, calls)
	assert.NotEmpty(t, res.RunID)

	got, _, err := imageio.Load(out)
	require.NoError(t, err)
	assert.True(t, testutil.LinesSorted(got))

	run, err := store.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, state.RunStatusCompleted, run.Status)
	assert.Equal(t, int64(32*16), run.PixelsSorted)
	assert.Contains(t, run.Options, `"key":"red"`)
}

func TestProcess_FailureIsRecorded(t *testing.T) {
	dir := t.TempDir()
	store := memoryStore(t)
	e := newTestEngine(t, Config{Sort: redOptions(), Store: store})

	_, err := e.Process(context.Background(), Job{
		Input:  filepath.Join(dir, "missing.png"),
		Output: filepath.Join(dir, "out.png"),
	}, nil)
	require.Error(t, err)

	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, state.RunStatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestProcess_UnsupportedOutput(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WritePNG(t, dir, "in.png", testutil.Noise(8, 8, 1))
	e := newTestEngine(t, Config{Sort: redOptions()})

	_, err := e.Process(context.Background(), Job{Input: in, Output: filepath.Join(dir, "out.xyz")}, nil)
	require.Error(t, err)
	assert.True(t, IsUserError(err))
}

func TestProcess_Mask(t *testing.T) {
	dir := t.TempDir()
	src := testutil.Noise(16, 4, 9)
	in := testutil.WritePNG(t, dir, "in.png", src)

	// Only the left half is sortable.
	m := image.NewGray(image.Rect(0, 0, 16, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			m.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	maskPath := testutil.WritePNG(t, dir, "mask.png", m)
	out := filepath.Join(dir, "out.png")

	e := newTestEngine(t, Config{Sort: redOptions(), MaskPath: maskPath})
	_, err := e.Process(context.Background(), Job{Input: in, Output: out}, nil)
	require.NoError(t, err)

	got, _, err := imageio.Load(out)
	require.NoError(t, err)
	for y := 0; y < 4; y++ {
		for x := 8; x < 16; x++ {
			assert.Equal(t, src.RGBAAt(x, y), got.RGBAAt(x, y), "masked pixel (%d,%d) moved", x, y)
		}
		for x := 1; x < 8; x++ {
			assert.LessOrEqual(t, got.RGBAAt(x-1, y).R, got.RGBAAt(x, y).R)
		}
	}
}

func TestProcess_MaskSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WritePNG(t, dir, "in.png", testutil.Noise(16, 4, 9))
	maskPath := testutil.WritePNG(t, dir, "mask.png", image.NewGray(image.Rect(0, 0, 4, 4)))

	e := newTestEngine(t, Config{Sort: redOptions(), MaskPath: maskPath})
	_, err := e.Process(context.Background(), Job{Input: in, Output: filepath.Join(dir, "out.png")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 16x4")
}

func TestProcess_Animate(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WritePNG(t, dir, "in.png", testutil.Noise(12, 6, 5))

	e := newTestEngine(t, Config{Sort: redOptions(), Animate: &animate.Params{Frames: 4}})

	_, err := e.Process(context.Background(), Job{Input: in, Output: filepath.Join(dir, "out.png")}, nil)
	require.Error(t, err, "animation requires a gif output")

	out := filepath.Join(dir, "out.gif")
	res, err := e.Process(context.Background(), Job{Input: in, Output: out}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Frames)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	g, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, g.Image, 4)
	assert.Equal(t, 6, res.Stats.Lines)
}

func TestProcess_AnimateVerticalLines(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WritePNG(t, dir, "in.png", testutil.Noise(12, 6, 5))

	opts := redOptions()
	opts.Direction = sorter.Vertical
	e := newTestEngine(t, Config{Sort: opts, Animate: &animate.Params{Frames: 2}})

	res, err := e.Process(context.Background(), Job{Input: in, Output: filepath.Join(dir, "out.gif")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, res.Stats.Lines)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad key", Config{Sort: sorter.Options{Key: "nope", Discretize: 1}}},
		{"bad animation", Config{Sort: redOptions(), Animate: &animate.Params{Frames: 1}}},
		{"missing script", Config{Sort: redOptions(), KeyScript: "/does/not/exist.star"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNew_StatePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	e, err := New(Config{Sort: redOptions(), StatePath: path})
	require.NoError(t, err)
	require.NotNil(t, e.Store())
	require.NoError(t, e.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestKeyScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "key.star")
	// Sort by inverted red, so rows end up descending.
	require.NoError(t, os.WriteFile(script, []byte("def key(r, g, b):\n    return 255 - r\n"), 0o600))

	e := newTestEngine(t, Config{Sort: redOptions(), KeyScript: script})

	img := testutil.Noise(16, 2, 11)
	_, err := e.ProcessImage(context.Background(), "upload.png", img, e.Options())
	require.NoError(t, err)
	for x := 1; x < 16; x++ {
		assert.GreaterOrEqual(t, img.RGBAAt(x-1, 0).R, img.RGBAAt(x, 0).R)
	}
}

func TestKeyScript_RuntimeError(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "key.star")
	require.NoError(t, os.WriteFile(script, []byte("def key(r, g, b):\n    return r // (g - g)\n"), 0o600))
	in := testutil.WritePNG(t, dir, "in.png", testutil.Noise(8, 2, 4))

	e := newTestEngine(t, Config{Sort: redOptions(), KeyScript: script})
	_, err := e.Process(context.Background(), Job{Input: in, Output: filepath.Join(dir, "out.png")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key script failed")
}

func TestKeyScript_ErrorDoesNotLeakIntoLaterJobs(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "key.star")
	require.NoError(t, os.WriteFile(script, []byte("def key(r, g, b):\n    return 255 // r\n"), 0o600))

	store := memoryStore(t)
	e := newTestEngine(t, Config{Sort: redOptions(), KeyScript: script, Store: store})

	solid := func(r uint8) *image.RGBA {
		img := image.NewRGBA(image.Rect(0, 0, 4, 2))
		for y := 0; y < 2; y++ {
			for x := 0; x < 4; x++ {
				img.SetRGBA(x, y, color.RGBA{R: r + uint8(x), A: 255})
			}
		}
		return img
	}

	// Red 0 divides by zero.
	_, err := e.ProcessImage(context.Background(), "bad.png", solid(0), e.Options())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key script failed")

	_, err = e.ProcessImage(context.Background(), "good.png", solid(10), e.Options())
	require.NoError(t, err)

	in := testutil.WritePNG(t, dir, "in.png", solid(20))
	_, err = e.Process(context.Background(), Job{Input: in, Output: filepath.Join(dir, "out.png")}, nil)
	require.NoError(t, err)

	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, state.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, state.RunStatusCompleted, runs[1].Status)
	assert.Equal(t, state.RunStatusFailed, runs[2].Status)
}

func TestProcessImage_Records(t *testing.T) {
	store := memoryStore(t)
	e := newTestEngine(t, Config{Sort: redOptions(), Store: store})

	img := testutil.Noise(10, 3, 2)
	stats, err := e.ProcessImage(context.Background(), "upload.png", img, e.Options())
	require.NoError(t, err)
	assert.Equal(t, int64(30), stats.Pixels)
	assert.True(t, testutil.LinesSorted(img))

	runs, err := store.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "upload.png", runs[0].Input)
	assert.Equal(t, "-", runs[0].Output)
	assert.Equal(t, state.RunStatusCompleted, runs[0].Status)
}

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/pxsort/internal/animate"
	"github.com/leapstack-labs/pxsort/internal/engine"
	"github.com/leapstack-labs/pxsort/internal/sorter"
	"github.com/leapstack-labs/pxsort/internal/testutil"
)

type fakeProcessor struct {
	mu   sync.Mutex
	jobs []engine.Job
	err  error
}

func (f *fakeProcessor) Process(_ context.Context, job engine.Job, _ sorter.Progress) (*engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Result{Input: job.Input, Output: job.Output}, nil
}

func (f *fakeProcessor) Jobs() []engine.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Job(nil), f.jobs...)
}

func startWatcher(t *testing.T, cfg Config) (cancel func()) {
	t.Helper()
	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give fsnotify a moment to register the directory.
	time.Sleep(50 * time.Millisecond)

	return func() {
		cancelCtx()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/in/leaves.jpg", "/out/leaves-edited.jpg"},
		{"/in/a.b.png", "/out/a.b-edited.png"},
		{"/in/photo.webp", "/out/photo-edited.png"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), OutputPath(filepath.FromSlash("/out"), filepath.FromSlash(tt.input)))
		})
	}
}

func TestNew_Validation(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := New(Config{InputDir: dir, OutputDir: dir})
	assert.Error(t, err, "processor required")

	_, err = New(Config{InputDir: filepath.Join(dir, "missing"), Processor: &fakeProcessor{}})
	assert.Error(t, err)

	_, err = New(Config{InputDir: file, Processor: &fakeProcessor{}})
	assert.Error(t, err)

	out := filepath.Join(dir, "nested", "out")
	_, err = New(Config{InputDir: dir, OutputDir: out, Processor: &fakeProcessor{}})
	require.NoError(t, err)
	assert.DirExists(t, out)
}

func TestWatcher_ProcessesNewImages(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	proc := &fakeProcessor{}

	var mu sync.Mutex
	var results []engine.Job
	stop := startWatcher(t, Config{
		InputDir:  in,
		OutputDir: out,
		Debounce:  20 * time.Millisecond,
		Processor: proc,
		Logger:    testutil.NewTestLogger(t),
		OnResult: func(job engine.Job, _ *engine.Result, err error) {
			assert.NoError(t, err)
			mu.Lock()
			results = append(results, job)
			mu.Unlock()
		},
	})
	defer stop()

	testutil.WritePNG(t, in, "a.png", testutil.Noise(4, 4, 1))
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("skip"), 0o600))
	testutil.WritePNG(t, in, "b-edited.png", testutil.Noise(4, 4, 2))

	require.Eventually(t, func() bool { return len(proc.Jobs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	// Nothing else should trickle in.
	time.Sleep(100 * time.Millisecond)

	jobs := proc.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, filepath.Join(in, "a.png"), jobs[0].Input)
	assert.Equal(t, filepath.Join(out, "a-edited.png"), jobs[0].Output)

	mu.Lock()
	assert.Len(t, results, 1)
	mu.Unlock()
}

func TestWatcher_AnimatingEngineWritesGIF(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	eng, err := engine.New(engine.Config{
		Sort:    sorter.DefaultOptions(),
		Animate: &animate.Params{Frames: 2},
		Logger:  testutil.NewTestLogger(t),
	})
	require.NoError(t, err)

	type outcome struct {
		job engine.Job
		err error
	}
	results := make(chan outcome, 4)
	stop := startWatcher(t, Config{
		InputDir:  in,
		OutputDir: out,
		Debounce:  20 * time.Millisecond,
		Processor: eng,
		OnResult: func(job engine.Job, _ *engine.Result, err error) {
			results <- outcome{job, err}
		},
	})
	defer stop()

	testutil.WritePNG(t, in, "a.png", testutil.Noise(6, 4, 1))

	select {
	case r := <-results:
		require.NoError(t, r.err)
		assert.Equal(t, filepath.Join(out, "a-edited.gif"), r.job.Output)
		assert.FileExists(t, r.job.Output)
	case <-time.After(5 * time.Second):
		t.Fatal("watched file was not processed")
	}
}

func TestWatcher_ExplicitOutputExt(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	proc := &fakeProcessor{}
	stop := startWatcher(t, Config{
		InputDir:  in,
		OutputDir: out,
		Debounce:  20 * time.Millisecond,
		Processor: proc,
		OutputExt: ".bmp",
	})
	defer stop()

	testutil.WritePNG(t, in, "a.png", testutil.Noise(4, 4, 1))
	require.Eventually(t, func() bool { return len(proc.Jobs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, filepath.Join(out, "a-edited.bmp"), proc.Jobs()[0].Output)
}

func TestWatcher_Debounces(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	proc := &fakeProcessor{}
	stop := startWatcher(t, Config{InputDir: in, OutputDir: out, Debounce: 150 * time.Millisecond, Processor: proc})
	defer stop()

	for i := 0; i < 5; i++ {
		testutil.WritePNG(t, in, "burst.png", testutil.Noise(4, 4, uint32(i)))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(proc.Jobs()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, proc.Jobs(), 1)
}

func TestWatcher_ErrorsAreNotFatal(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	proc := &fakeProcessor{err: errors.New("decode failed")}
	stop := startWatcher(t, Config{InputDir: in, OutputDir: out, Debounce: 10 * time.Millisecond, Processor: proc})

	testutil.WritePNG(t, in, "one.png", testutil.Noise(2, 2, 1))
	require.Eventually(t, func() bool { return len(proc.Jobs()) == 1 }, 2*time.Second, 10*time.Millisecond)

	testutil.WritePNG(t, in, "two.png", testutil.Noise(2, 2, 2))
	require.Eventually(t, func() bool { return len(proc.Jobs()) == 2 }, 2*time.Second, 10*time.Millisecond)

	stop()
}

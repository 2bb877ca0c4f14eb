package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/pxsort/internal/engine"
	"github.com/leapstack-labs/pxsort/internal/imageio"
	"github.com/leapstack-labs/pxsort/internal/pixel"
	"github.com/leapstack-labs/pxsort/internal/sorter"
	"github.com/leapstack-labs/pxsort/internal/state"
)

// defaultRunsLimit bounds /runs when no limit is given.
const defaultRunsLimit = 50

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleKeys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, pixel.Keys())
}

// handleSort sorts the uploaded image. The body is either the raw image or
// a multipart form with an "image" field.
func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	src, name, err := uploadedImage(r)
	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(src)
	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}
	img, inFormat, err := imageio.DecodeLimit(bytes.NewReader(data), s.maxPixels)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	q := r.URL.Query()
	opts, err := queryOptions(s.engine.Options(), q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	outFormat := imageio.FormatPNG
	if f := q.Get("format"); f != "" {
		if outFormat, err = imageio.ParseFormat(f); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	quality := 0
	if v := q.Get("quality"); v != "" {
		if quality, err = strconv.Atoi(v); err != nil || quality < 1 || quality > 100 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("quality must be within 1..100, got %q", v))
			return
		}
	}

	s.logger.Debug("sorting upload", "name", name, "format", inFormat, "key", opts.Key)

	stats, err := s.engine.ProcessImage(r.Context(), name, img, opts)
	s.feed.runChanged()
	if err != nil {
		status := http.StatusInternalServerError
		if engine.IsUserError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	w.Header().Set("Content-Type", outFormat.ContentType())
	w.Header().Set("X-Pxsort-Pixels", strconv.FormatInt(stats.Pixels, 10))
	w.Header().Set("X-Pxsort-Seed", strconv.FormatInt(stats.Seed, 10))
	if err := imageio.Encode(w, outFormat, img, imageio.SaveOptions{JPEGQuality: quality}); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func uploadedImage(r *http.Request) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, "upload", nil
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, "", fmt.Errorf("multipart field \"image\": %w", err)
	}
	return file, header.Filename, nil
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// queryOptions applies query parameter overrides to base.
func queryOptions(base sorter.Options, q url.Values) (sorter.Options, error) {
	opts := base

	if v := q.Get("key"); v != "" {
		k, err := pixel.ParseKey(v)
		if err != nil {
			return opts, err
		}
		opts.Key = k
		opts.KeyFunc = nil
	}
	if v := q.Get("direction"); v != "" {
		d, err := sorter.ParseDirection(v)
		if err != nil {
			return opts, err
		}
		opts.Direction = d
	}
	if v := q.Get("threshold"); v != "" {
		rng, err := sorter.ParseRange(v)
		if err != nil {
			return opts, err
		}
		opts.Threshold = rng
	}
	if v := q.Get("channel"); v != "" {
		c, err := pixel.ParseChannel(v)
		if err != nil {
			return opts, err
		}
		opts.Channel = c
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"interval", &opts.Interval},
		{"progressive", &opts.Progressive},
		{"discretize", &opts.Discretize},
	}
	for _, p := range ints {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return opts, fmt.Errorf("%s: %w", p.name, err)
			}
			*p.dst = n
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"reverse", &opts.Reverse},
		{"shuffle", &opts.Shuffle},
	}
	for _, p := range bools {
		if v := q.Get(p.name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return opts, fmt.Errorf("%s: %w", p.name, err)
			}
			*p.dst = b
		}
	}

	if v := q.Get("splice"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, fmt.Errorf("splice: %w", err)
		}
		opts.Splice = f
	}
	if v := q.Get("edge_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, fmt.Errorf("edge_threshold: %w", err)
		}
		opts.EdgeThreshold = f
	}
	if v := q.Get("seed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("seed: %w", err)
		}
		opts.Seed = n
	}

	// Masks are sized for a specific image, so uploads never use one.
	opts.Mask = nil
	return opts, opts.Validate()
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit: %w", err))
			return
		}
		limit = n
	}

	runs, err := s.listRuns(r, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleRunUpdates is a long-lived SSE endpoint. It sends the recent runs
// as a "runs" signal immediately and again whenever the history changes.
func (s *Server) handleRunUpdates(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	updates, cancel := s.feed.subscribe()
	defer cancel()

	send := func() {
		runs, err := s.listRuns(r, defaultRunsLimit)
		if err != nil {
			_ = sse.ConsoleError(err)
			return
		}
		if err := sse.MarshalAndPatchSignals(map[string]any{"runs": runs}); err != nil {
			s.logger.Debug("failed to push runs", "error", err)
		}
	}

	send()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			send()
		}
	}
}

func (s *Server) listRuns(r *http.Request, limit int) ([]*state.Run, error) {
	store := s.engine.Store()
	if store == nil {
		return []*state.Run{}, nil
	}
	runs, err := store.ListRuns(r.Context(), limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []*state.Run{}
	}
	return runs, nil
}

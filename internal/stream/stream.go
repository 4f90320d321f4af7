// Package stream normalizes the two chat backends into one sequence of
// cumulative text snapshots.
//
// The primary backend sends SSE deltas that are appended; the fallback
// backend sends chunks that may be either deltas or full snapshots. Callers
// only ever see the cleaned accumulation so far.
package stream

import (
	"context"
	"errors"
	"io"
	"log"
	"regexp"
	"strings"
)

// Source produces raw chunks. It returns io.EOF at the normal end.
type Source interface {
	Next() (string, error)
	Close() error
}

// FallbackOpener starts a request on the fallback backend.
type FallbackOpener func(ctx context.Context, cfg Config, req Request) (Source, error)

type Normalizer struct {
	fallback FallbackOpener
}

// NewNormalizer returns a normalizer using fallback for the secondary
// backend. A nil opener selects the Gemini client.
func NewNormalizer(fallback FallbackOpener) *Normalizer {
	if fallback == nil {
		fallback = OpenGenAI
	}
	return &Normalizer{fallback: fallback}
}

// Open starts a completion on the backend named by cfg.Choice.
func (n *Normalizer) Open(ctx context.Context, cfg Config, req Request) (*Stream, error) {
	switch cfg.Choice.Backend {
	case BackendPrimary:
		src, err := openPrimary(ctx, cfg, req)
		if err != nil {
			return nil, abortedOr(ctx, err)
		}
		return newStream(ctx, src, appendDelta, stripNoise), nil
	default:
		if cfg.Choice.Reason != "" {
			log.Printf("Using fallback backend for model %s: %s", req.Model.ID, cfg.Choice.Reason)
		}
		src, err := n.fallback(ctx, cfg, req)
		if err != nil {
			return nil, abortedOr(ctx, err)
		}
		return newStream(ctx, src, ApplySnapshot, nil), nil
	}
}

// Stream is an iterator over cumulative snapshots:
//
//	for s.Next() {
//		render(s.Current())
//	}
//	if err := s.Err(); err != nil && !errors.Is(err, ErrAborted) { ... }
type Stream struct {
	ctx   context.Context
	src   Source
	merge func(acc, chunk string) string
	clean func(string) string

	raw     string
	current string
	err     error
	done    bool
}

func newStream(ctx context.Context, src Source, merge func(string, string) string, clean func(string) string) *Stream {
	return &Stream{ctx: ctx, src: src, merge: merge, clean: clean}
}

// Next advances to the next changed snapshot.
func (s *Stream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	for {
		if s.ctx.Err() != nil {
			s.err = ErrAborted
			return false
		}
		chunk, err := s.src.Next()
		if errors.Is(err, io.EOF) {
			s.done = true
			return false
		}
		if err != nil {
			s.err = abortedOr(s.ctx, err)
			return false
		}
		next := s.merge(s.raw, chunk)
		if next == s.raw {
			continue
		}
		s.raw = next
		if s.clean != nil {
			s.current = s.clean(next)
		} else {
			s.current = next
		}
		return true
	}
}

// Current is the cleaned text accumulated so far.
func (s *Stream) Current() string {
	return s.current
}

func (s *Stream) Err() error {
	return s.err
}

func (s *Stream) Close() error {
	return s.src.Close()
}

func abortedOr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return ErrAborted
	}
	return err
}

func appendDelta(acc, chunk string) string {
	return acc + chunk
}

// ApplySnapshot merges a chunk that may be a full snapshot or a delta. A
// chunk extending (or equal to) the accumulation replaces it; anything else
// is appended.
func ApplySnapshot(acc, chunk string) string {
	if strings.HasPrefix(chunk, acc) {
		return chunk
	}
	return acc + chunk
}

var audioProgressRe = regexp.MustCompile(`Generating Audio \(\d+s elapsed\)`)

func stripNoise(s string) string {
	return audioProgressRe.ReplaceAllString(s, "")
}

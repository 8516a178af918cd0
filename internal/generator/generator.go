// Package generator samples document chunks and drives the question
// synthesizer until enough relevant questions are collected.
package generator

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/quizzy-app/quizzy/internal/chunker"
	"github.com/quizzy-app/quizzy/internal/llm"
	"github.com/quizzy-app/quizzy/internal/model"
)

// ErrNoContent is returned when the source document has no text to sample.
var ErrNoContent = errors.New("no text content available")

// ErrEmptySynthesis is returned when a direct synthesis call produced no
// questions.
var ErrEmptySynthesis = errors.New("synthesizer returned no questions")

// Synthesizer produces validated questions from one text segment.
type Synthesizer interface {
	Synthesize(ctx context.Context, segment string, n int, difficulty model.Difficulty) ([]model.Question, error)
}

// Config tunes the sampling loop. Zero fields fall back to defaults.
type Config struct {
	MaxChunkChars int           // segment size, default chunker.DefaultMaxChars
	BatchSize     int           // questions requested per chunk, default 2
	MinRelevance  float64       // acceptance threshold, default 0.7
	CallTimeout   time.Duration // budget per synthesizer call, default 60s
}

// Sampler generates a bounded question set from arbitrarily long text by
// trying randomly chosen chunks, each at most once.
type Sampler struct {
	synth Synthesizer
	cfg   Config

	// intN picks a random int in [0,n); swapped out in tests.
	intN func(n int) int
}

// New creates a Sampler around the given synthesizer.
func New(synth Synthesizer, cfg Config) *Sampler {
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = chunker.DefaultMaxChars
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 2
	}
	if cfg.MinRelevance <= 0 {
		cfg.MinRelevance = 0.7
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	return &Sampler{synth: synth, cfg: cfg, intN: rand.IntN}
}

// Generate returns up to n questions with relevance >= the configured
// threshold, sorted by relevance descending (stable, discovery order on
// ties). Fewer than n questions is a valid outcome, not an error; callers
// report it as a warning. Each chunk is attempted at most once, so the loop
// performs at most one synthesis call per chunk.
func (s *Sampler) Generate(ctx context.Context, text string, n int, difficulty model.Difficulty) ([]model.Question, error) {
	if text == "" {
		return nil, ErrNoContent
	}
	chunks := chunker.Split(text, s.cfg.MaxChunkChars)

	var accepted []model.Question
	remaining := make([]int, len(chunks))
	for i := range chunks {
		remaining[i] = i
	}

	for len(accepted) < n && len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pick := s.intN(len(remaining))
		idx := remaining[pick]
		remaining = append(remaining[:pick], remaining[pick+1:]...)

		questions, err := s.synthesizeChunk(ctx, chunks[idx].Text, s.cfg.BatchSize, difficulty)
		if err != nil {
			// Best-effort sampling: a failed or timed-out chunk is skipped,
			// never fatal for the whole request.
			slog.Warn("skipping chunk", "chunk", idx, "reason", classifyFailure(err), "error", err)
			continue
		}

		kept := 0
		for _, q := range questions {
			if q.RelevanceScore >= s.cfg.MinRelevance {
				accepted = append(accepted, q)
				kept++
			}
		}
		slog.Info("sampled chunk", "chunk", idx, "generated", len(questions), "relevant", kept)
	}

	slices.SortStableFunc(accepted, func(a, b model.Question) int {
		return cmp.Compare(b.RelevanceScore, a.RelevanceScore)
	})
	if len(accepted) > n {
		accepted = accepted[:n]
	}
	return accepted, nil
}

// One synthesizes a single question from the given text, used for
// regenerating one question in place. Unlike Generate, failure here is hard:
// the caller needs an immediate answer.
func (s *Sampler) One(ctx context.Context, text string, difficulty model.Difficulty) (model.Question, error) {
	if text == "" {
		return model.Question{}, ErrNoContent
	}
	questions, err := s.synthesizeChunk(ctx, text, 1, difficulty)
	if err != nil {
		return model.Question{}, err
	}
	if len(questions) == 0 {
		return model.Question{}, ErrEmptySynthesis
	}
	return questions[0], nil
}

func (s *Sampler) synthesizeChunk(ctx context.Context, segment string, n int, difficulty model.Difficulty) ([]model.Question, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.synth.Synthesize(callCtx, segment, n, difficulty)
}

// classifyFailure names the failure class of a skipped chunk so logs can
// distinguish a slow endpoint from garbage output.
func classifyFailure(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, llm.ErrMalformed):
		return "malformed"
	default:
		return "transport"
	}
}

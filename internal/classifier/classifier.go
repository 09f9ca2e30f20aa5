// Package classifier adapts external intent classification services behind a
// bounded, never-failing gateway.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/pkg/logger"
	"github.com/capitalize-ai/support-router/pkg/metrics"
)

// DefaultTimeout bounds a single classification call.
const DefaultTimeout = 10 * time.Second

// Request is the input to a classification call.
type Request struct {
	Message   string
	SessionID string
	UserID    string
	Platform  model.Platform
}

// Result is a classification with the reply the bot would give.
type Result struct {
	Text         string
	Intent       model.Intent
	Confidence   float64
	QuickReplies []string
	Attachments  []model.Attachment
	// Fallback is set when the result was synthesized after a backend failure.
	Fallback bool
}

// Backend is an external classification service.
type Backend interface {
	Classify(ctx context.Context, req Request) (*Result, error)
	Name() string
}

// Gateway bounds backend calls and replaces failures with a fixed fallback.
type Gateway struct {
	backend      Backend
	timeout      time.Duration
	fallbackText string
	logger       *logger.Logger
}

// NewGateway creates a gateway around backend.
func NewGateway(backend Backend, timeout time.Duration, fallbackText string, log *logger.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		backend:      backend,
		timeout:      timeout,
		fallbackText: fallbackText,
		logger:       log,
	}
}

// Fallback returns the response used when the backend cannot answer.
func (g *Gateway) Fallback() Result {
	return Result{
		Text:       g.fallbackText,
		Intent:     model.IntentUnknown,
		Confidence: 0,
		Fallback:   true,
	}
}

type outcome struct {
	res *Result
	err error
}

// Classify never returns an error: any backend failure, timeout or malformed
// answer yields the fallback result with zero confidence.
func (g *Gateway) Classify(ctx context.Context, req Request) Result {
	if g.backend == nil {
		return g.Fallback()
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		res, err := g.backend.Classify(ctx, req)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: ctx.Err()}
	}

	elapsed := time.Since(start).Seconds()
	switch {
	case out.err != nil:
	case out.res == nil:
		out.err = errors.New("empty classifier response")
	case strings.TrimSpace(out.res.Text) == "":
		out.err = errors.New("classifier response has no reply text")
	}
	if out.err != nil {
		cause := "error"
		if errors.Is(out.err, context.DeadlineExceeded) {
			cause = "timeout"
		}
		metrics.RecordClassification(g.backend.Name(), cause, elapsed)
		g.logger.Warn("classifier unavailable, using fallback",
			zap.String("session_id", req.SessionID),
			zap.String("backend", g.backend.Name()),
			zap.String("cause", cause),
			zap.Error(out.err),
		)
		return g.Fallback()
	}

	metrics.RecordClassification(g.backend.Name(), "success", elapsed)
	return normalize(*out.res)
}

func normalize(r Result) Result {
	r.Intent = model.ParseIntent(string(r.Intent))
	switch {
	case math.IsNaN(r.Confidence), r.Confidence < 0:
		r.Confidence = 0
	case r.Confidence > 1:
		r.Confidence = 1
	}
	return r
}

// ErrStatus is returned by HTTP backends for non-2xx responses.
type ErrStatus struct {
	Code int
}

func (e *ErrStatus) Error() string {
	return fmt.Sprintf("classifier: unexpected status %d", e.Code)
}

package llm

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by the no-op classifier on every call.
var ErrNotConfigured = errors.New("llm classifier not configured")

// NoopClassifier is the stand-in used when no LLM backend is configured.
// Classify always errors so callers take their pattern-matching fallback;
// unit tests run against it without any network.
type NoopClassifier struct{}

// NewNoopClassifier creates the no-op classifier.
func NewNoopClassifier() *NoopClassifier { return &NoopClassifier{} }

func (c *NoopClassifier) Classify(_ context.Context, _, _ string) (IntentResult, error) {
	return IntentResult{}, ErrNotConfigured
}

func (c *NoopClassifier) Available() bool { return false }

package llm

import "context"

// IntentResult is the strict output contract for intent classification.
type IntentResult struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// IntentClassifier is the optional LLM capability the understanding stage
// consumes. Implementations must return one of the five intent labels
// {search, refine, compare, information, off_topic} with a confidence in
// [0, 1]. The pipeline degrades to pattern matching when the classifier
// is absent or failing, so errors here are never fatal to a turn.
type IntentClassifier interface {
	Classify(ctx context.Context, text, previousText string) (IntentResult, error)
	// Available reports whether a real backend is configured. The no-op
	// implementation returns false, which forces the regex fallback.
	Available() bool
}

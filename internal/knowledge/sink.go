// Package knowledge records task outcomes and failure experiences in an
// external knowledge base. All writes are best-effort: callers log and
// swallow errors, and a write failure never affects task state.
package knowledge

import "context"

// Sink is the write contract against the knowledge base.
type Sink interface {
	// RecordOutcome stores a successful task result. Returns the id the
	// knowledge base assigned to the document.
	RecordOutcome(ctx context.Context, taskID, taskType string, result map[string]any, role string) (string, error)

	// RecordFailure stores a failure experience for later retrieval.
	RecordFailure(ctx context.Context, taskType, errMsg, failureContext, role string) (string, error)
}

// Noop is a Sink that discards everything.
type Noop struct{}

func (Noop) RecordOutcome(context.Context, string, string, map[string]any, string) (string, error) {
	return "", nil
}

func (Noop) RecordFailure(context.Context, string, string, string, string) (string, error) {
	return "", nil
}

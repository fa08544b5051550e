// Package llm talks to the external text-generation service. Batches of ~50
// candidate lines are requested per call and the response is consumed as an
// incremental stream: the first well-formed candidate resolves the waiting
// request while the remainder keeps filling the pool in the background.
package llm

import (
	"context"

	"github.com/scrypster/perspective/pkg/types"
)

// BatchRequest describes one batch-generation call.
type BatchRequest struct {
	// Plan carries intent, style, topic, and language constraints.
	Plan types.Plan

	// Context carries the live signals woven into the user instruction.
	Context types.RouterContext

	// Avoid lists recently shown lines the service is told not to echo.
	Avoid []string

	// BatchSize is the number of candidates requested (~50).
	BatchSize int
}

// BatchGenerator is the interface for streaming batch generation.
//
// GenerateBatch returns a channel that delivers candidates as they are parsed
// out of the partial response stream; the channel closes when the stream ends
// or the context is cancelled. Candidates that fail to parse upstream are
// silently dropped. A non-nil error is returned only when the call could not
// be started at all (transport failure, open circuit).
type BatchGenerator interface {
	GenerateBatch(ctx context.Context, req BatchRequest) (<-chan types.PoolItem, error)
	GetModel() string
}

package rag

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the ingestion, indexing, and generation stages.
// Concrete errors wrap one of these with %w so callers can branch on the kind
// with errors.Is while still seeing the underlying cause.
var (
	// ErrIngest reports a document that could not be parsed as its declared format.
	ErrIngest = errors.New("ingest error")

	// ErrIndexBuild reports a document with no embeddable content.
	ErrIndexBuild = errors.New("index build error")

	// ErrEmbedding reports an embedding backend rejecting its input.
	ErrEmbedding = errors.New("embedding error")

	// ErrGeneration reports an authentication, availability, or rate-limit
	// failure at the completion backend.
	ErrGeneration = errors.New("generation error")

	// ErrGenerationTimeout is the timeout flavour of ErrGeneration.
	// errors.Is(ErrGenerationTimeout, ErrGeneration) is true.
	ErrGenerationTimeout = fmt.Errorf("%w: timeout", ErrGeneration)

	// ErrConfig reports a missing or invalid setting or credential, detected
	// before any network call is made.
	ErrConfig = errors.New("config error")
)

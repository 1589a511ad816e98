package models

import "errors"

// Domain errors. Wrap them with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	// ErrNotFound covers both absent rows and rows owned by another user.
	ErrNotFound = errors.New("not found")

	ErrBadRequest = errors.New("bad request")

	ErrExtraction = errors.New("text extraction failed")
	ErrEmbedding  = errors.New("embedding failed")
	ErrGeneration = errors.New("generation failed")

	// ErrPipelineFailure marks an ingestion that ended in the FAILED state.
	ErrPipelineFailure = errors.New("document processing failed")
)

package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedFileType indicates the parser has no handler for the file extension
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrParseFailure indicates a supported file could not be read or decoded
	ErrParseFailure = errors.New("parse failure")

	// ErrInvalidChunkConfig indicates the window settings cannot advance (overlap >= max tokens)
	ErrInvalidChunkConfig = errors.New("invalid chunking configuration")

	// ErrEmptyInput indicates there was no text to embed, so there is no embedding
	ErrEmptyInput = errors.New("no input provided")

	// ErrEmbeddingFailed indicates the embedding service call failed
	ErrEmbeddingFailed = errors.New("embedding service failure")

	// ErrChunkingFailed wraps any failure recorded on a document by the ingestion pipeline
	ErrChunkingFailed = errors.New("chunking failed")

	// ErrDocumentLocked indicates another chunking pass holds the document
	ErrDocumentLocked = errors.New("document is being processed")

	// ErrNotRetryable indicates the document is not in a state that allows a retry
	ErrNotRetryable = errors.New("document is not retryable")

	// ErrRetryLimitReached indicates the document used up its retries
	ErrRetryLimitReached = errors.New("retry limit reached")

	// ErrServiceUnavailable indicates a backing service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)

package receipt

import "errors"

// Pipeline error taxonomy. Every error is terminal for the request that
// produced it; callers match with errors.Is.
var (
	// ErrExtractionTimeout means the OCR job did not finish within the polling bound.
	ErrExtractionTimeout = errors.New("extraction timeout")
	// ErrExtractionFailed means the OCR collaborator reported a failed job.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrExtractionError covers transport and protocol errors talking to OCR.
	ErrExtractionError = errors.New("extraction error")
	// ErrEmptyDocument means OCR finished but recovered no text.
	ErrEmptyDocument = errors.New("empty document")
	// ErrStructuringFailed means the text-generation response lacked the table header.
	ErrStructuringFailed = errors.New("structuring failed")
	// ErrMalformedBatch means the input is not readable as a receipt table at all.
	ErrMalformedBatch = errors.New("malformed batch")
	// ErrPersistFailed means the backup artifact could not be written.
	ErrPersistFailed = errors.New("persist failed")
	// ErrIndexFailed means embedding or the bulk index upsert failed.
	ErrIndexFailed = errors.New("index failed")
)

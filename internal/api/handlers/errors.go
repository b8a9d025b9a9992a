package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/dvloznov/receipt-ledger/internal/archive"
	"github.com/dvloznov/receipt-ledger/internal/assistant"
	"github.com/dvloznov/receipt-ledger/internal/jobs"
	"github.com/dvloznov/receipt-ledger/internal/ledger"
	"github.com/dvloznov/receipt-ledger/internal/receipt"
)

// StatusFor maps an error to the HTTP status reported to clients.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, receipt.ErrEmptyDocument),
		errors.Is(err, receipt.ErrStructuringFailed),
		errors.Is(err, receipt.ErrMalformedBatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, receipt.ErrExtractionTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, receipt.ErrExtractionFailed),
		errors.Is(err, receipt.ErrExtractionError),
		errors.Is(err, receipt.ErrPersistFailed),
		errors.Is(err, receipt.ErrIndexFailed):
		return http.StatusBadGateway
	case errors.Is(err, ledger.ErrNoUsableItems),
		errors.Is(err, assistant.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, archive.ErrNotFound),
		errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns a client-facing message for err. Internal errors are
// not echoed to the client.
func messageFor(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}

package pipeline

import "context"

// TextExtractor turns an image into a receipt table. This interface enables
// mocking the OCR and text-generation collaborators in tests.
type TextExtractor interface {
	// ExtractText runs OCR on the image and returns the recovered text.
	ExtractText(ctx context.Context, image []byte, contentType string) (string, error)
	// Structure converts OCR text into a receipt table with the fixed header.
	Structure(ctx context.Context, text string) (string, error)
}

// Package search defines the vector search index that serves conversational
// retrieval over receipt rows. The index is a derived view of the archive and
// can always be rebuilt from it.
package search

import (
	"context"

	"github.com/dvloznov/receipt-ledger/internal/receipt"
)

// Document is one indexed receipt row.
type Document struct {
	ID       string    `json:"id" bigquery:"id"`
	BackupID string    `json:"filename" bigquery:"backup_id"`
	Store    string    `json:"store" bigquery:"store"`
	Date     string    `json:"date" bigquery:"date"`
	Item     string    `json:"items" bigquery:"items"`
	Price    float64   `json:"price" bigquery:"price"`
	Currency string    `json:"currency" bigquery:"currency"`
	Quantity int64     `json:"quantity" bigquery:"quantity"`
	Category string    `json:"category" bigquery:"category"`
	Country  string    `json:"country" bigquery:"country"`
	Content  string    `json:"content" bigquery:"content"`
	Vector   []float32 `json:"content_vector,omitempty" bigquery:"content_vector"`
}

// NewDocument builds the document for one record.
func NewDocument(backupID string, r receipt.Record, vector []float32) Document {
	return Document{
		ID:       r.ID,
		BackupID: backupID,
		Store:    r.Store,
		Date:     r.Date,
		Item:     r.Item,
		Price:    r.Price,
		Currency: r.Currency,
		Quantity: int64(r.Quantity),
		Category: r.Category,
		Country:  r.Country,
		Content:  r.Narrative,
		Vector:   vector,
	}
}

// Hit is a search result.
type Hit struct {
	Document
	Score float64 `json:"score"`
}

// Index stores documents keyed by id with upsert-or-replace semantics.
type Index interface {
	// Upsert inserts docs, replacing any document with the same id.
	// The call is all-or-nothing.
	Upsert(ctx context.Context, docs []Document) error
	// Delete removes documents by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error
	// Search returns up to k documents closest to vector, best first.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
}

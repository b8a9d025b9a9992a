// Package bigquery implements the receipt search index on BigQuery: rows are
// merged by id, deleted by id and ranked with VECTOR_SEARCH.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/dvloznov/receipt-ledger/internal/search"
)

var _ search.Index = (*ReceiptIndex)(nil)

// ReceiptIndex is the BigQuery implementation of search.Index. It holds a
// shared BigQuery client to avoid creating a new connection per operation.
type ReceiptIndex struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewReceiptIndex creates an index over projectID.datasetID.receipt_documents.
func NewReceiptIndex(ctx context.Context, projectID, datasetID string, opts ...option.ClientOption) (*ReceiptIndex, error) {
	if projectID == "" || datasetID == "" {
		return nil, fmt.Errorf("NewReceiptIndex: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewReceiptIndex: creating client: %w", err)
	}
	return &ReceiptIndex{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (r *ReceiptIndex) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client exposes the shared client, for migrations.
func (r *ReceiptIndex) Client() *bigquery.Client {
	return r.client
}

// Upsert delegates to UpsertDocumentsWithClient.
func (r *ReceiptIndex) Upsert(ctx context.Context, docs []search.Document) error {
	return UpsertDocumentsWithClient(ctx, r.client, r.projectID, r.datasetID, docs)
}

// Delete delegates to DeleteDocumentsWithClient.
func (r *ReceiptIndex) Delete(ctx context.Context, ids []string) error {
	return DeleteDocumentsWithClient(ctx, r.client, r.projectID, r.datasetID, ids)
}

// Search delegates to SearchDocumentsWithClient.
func (r *ReceiptIndex) Search(ctx context.Context, vector []float32, k int) ([]search.Hit, error) {
	return SearchDocumentsWithClient(ctx, r.client, r.projectID, r.datasetID, vector, k)
}

// Migrate applies the embedded schema migrations to the index dataset.
func (r *ReceiptIndex) Migrate(ctx context.Context, appliedBy string) (int, error) {
	migrations, err := ReadMigrations(ctx, Migrations, "migrations", r.projectID, r.datasetID)
	if err != nil {
		return 0, err
	}
	return NewMigrator(r.client, r.projectID, r.datasetID, appliedBy).Apply(ctx, migrations)
}

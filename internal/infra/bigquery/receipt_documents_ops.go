package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/receipt-ledger/internal/search"
)

// UpsertDocumentsWithClient merges docs into the documents table in a single
// statement, so either every row is written or none is.
func UpsertDocumentsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, docs []search.Document) error {
	if len(docs) == 0 {
		return nil
	}

	rows := make([]DocumentRow, len(docs))
	for i, d := range docs {
		rows[i] = ToDocumentRow(d)
	}

	q := client.Query(fmt.Sprintf(`
		MERGE `+"`%s.%s.%s`"+` T
		USING (SELECT * FROM UNNEST(@docs)) S
		ON T.id = S.id
		WHEN MATCHED THEN UPDATE SET
			backup_id = S.backup_id,
			store = S.store,
			date = S.date,
			items = S.items,
			price = S.price,
			currency = S.currency,
			quantity = S.quantity,
			category = S.category,
			country = S.country,
			content = S.content,
			content_vector = S.content_vector,
			updated_ts = CURRENT_TIMESTAMP()
		WHEN NOT MATCHED THEN INSERT (
			id, backup_id, store, date, items, price, currency,
			quantity, category, country, content, content_vector, updated_ts
		) VALUES (
			S.id, S.backup_id, S.store, S.date, S.items, S.price, S.currency,
			S.quantity, S.category, S.country, S.content, S.content_vector, CURRENT_TIMESTAMP()
		)
	`, projectID, datasetID, DocumentsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "docs", Value: rows},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("UpsertDocuments: %w", err)
	}
	return nil
}

// DeleteDocumentsWithClient removes documents by id.
func DeleteDocumentsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	q := client.Query(fmt.Sprintf(`
		DELETE FROM `+"`%s.%s.%s`"+`
		WHERE id IN UNNEST(@ids)
	`, projectID, datasetID, DocumentsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("DeleteDocuments: %w", err)
	}
	return nil
}

// SearchDocumentsWithClient returns the k documents nearest to vector by
// cosine distance.
func SearchDocumentsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, vector []float32, k int) ([]search.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			base.id,
			base.backup_id,
			base.store,
			base.date,
			base.items,
			base.price,
			base.currency,
			base.quantity,
			base.category,
			base.country,
			base.content,
			distance
		FROM VECTOR_SEARCH(
			TABLE `+"`%s.%s.%s`"+`,
			'content_vector',
			(SELECT @query AS content_vector),
			top_k => %d,
			distance_type => 'COSINE'
		)
		ORDER BY distance
	`, projectID, datasetID, DocumentsTable, k))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "query", Value: toFloat64(vector)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("SearchDocuments: query read: %w", err)
	}

	var hits []search.Hit
	for {
		var r searchRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("SearchDocuments: iter next: %w", err)
		}
		hits = append(hits, search.Hit{Document: r.Document(), Score: 1 - r.Distance})
	}
	return hits, nil
}

func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

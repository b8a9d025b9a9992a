package bigquery

import "github.com/dvloznov/receipt-ledger/internal/search"

// DocumentsTable holds one row per indexed receipt record.
const DocumentsTable = "receipt_documents"

// DocumentRow is the BigQuery shape of a search.Document.
type DocumentRow struct {
	ID            string    `bigquery:"id"`
	BackupID      string    `bigquery:"backup_id"`
	Store         string    `bigquery:"store"`
	Date          string    `bigquery:"date"`
	Items         string    `bigquery:"items"`
	Price         float64   `bigquery:"price"`
	Currency      string    `bigquery:"currency"`
	Quantity      int64     `bigquery:"quantity"`
	Category      string    `bigquery:"category"`
	Country       string    `bigquery:"country"`
	Content       string    `bigquery:"content"`
	ContentVector []float64 `bigquery:"content_vector"`
}

// searchRow is a VECTOR_SEARCH result row.
type searchRow struct {
	DocumentRow
	Distance float64 `bigquery:"distance"`
}

// ToDocumentRow converts a document for a query parameter.
func ToDocumentRow(d search.Document) DocumentRow {
	return DocumentRow{
		ID:            d.ID,
		BackupID:      d.BackupID,
		Store:         d.Store,
		Date:          d.Date,
		Items:         d.Item,
		Price:         d.Price,
		Currency:      d.Currency,
		Quantity:      d.Quantity,
		Category:      d.Category,
		Country:       d.Country,
		Content:       d.Content,
		ContentVector: toFloat64(d.Vector),
	}
}

// Document converts the row back, dropping the vector.
func (r DocumentRow) Document() search.Document {
	return search.Document{
		ID:       r.ID,
		BackupID: r.BackupID,
		Store:    r.Store,
		Date:     r.Date,
		Item:     r.Items,
		Price:    r.Price,
		Currency: r.Currency,
		Quantity: r.Quantity,
		Category: r.Category,
		Country:  r.Country,
		Content:  r.Content,
	}
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

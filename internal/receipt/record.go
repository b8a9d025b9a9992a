// Package receipt defines the receipt ledger data model: records, batches,
// the fixed category set, the backup artifact format and the normalizer that
// turns extractor output into typed rows.
package receipt

import (
	"fmt"
	"strconv"
	"strings"
)

// NotAvailable is the placeholder for a field that could not be determined.
const NotAvailable = "N/A"

// Record is one purchased line item.
type Record struct {
	ID        string  `json:"id"`
	Store     string  `json:"store"`
	Date      string  `json:"date"`
	Item      string  `json:"items"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	Quantity  int     `json:"quantity"`
	Category  string  `json:"category"`
	Country   string  `json:"country"`
	Narrative string  `json:"content"`
}

// Total returns price × quantity.
func (r Record) Total() float64 {
	return r.Price * float64(r.Quantity)
}

// Batch is the ordered set of records extracted from one image, together with
// the backup artifact name it is persisted under. Treat a Batch as immutable.
type Batch struct {
	BackupID string   `json:"filename"`
	Records  []Record `json:"records"`
}

// Indexable returns the records that carry a narrative and can be embedded.
func (b *Batch) Indexable() []Record {
	out := make([]Record, 0, len(b.Records))
	for _, r := range b.Records {
		if strings.TrimSpace(r.Narrative) != "" {
			out = append(out, r)
		}
	}
	return out
}

// IDs returns the record ids in batch order.
func (b *Batch) IDs() []string {
	ids := make([]string, len(b.Records))
	for i, r := range b.Records {
		ids[i] = r.ID
	}
	return ids
}

// View is the display shape of one processed receipt. It is also the input
// unit of per-session currency reports.
type View struct {
	MerchantName    string     `json:"merchantName"`
	TransactionDate string     `json:"transactionDate"`
	Total           string     `json:"total"`
	Currency        string     `json:"currency"`
	Items           []ViewItem `json:"items"`
}

// ViewItem is one line of a View.
type ViewItem struct {
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category string `json:"category,omitempty"`
}

// NewView summarizes a batch for display.
func NewView(b *Batch) View {
	v := View{
		MerchantName:    NotAvailable,
		TransactionDate: NotAvailable,
		Currency:        NotAvailable,
		Items:           make([]ViewItem, 0, len(b.Records)),
	}

	var total float64
	for _, r := range b.Records {
		total += r.Price
		v.Items = append(v.Items, ViewItem{
			Name:     r.Item,
			Price:    formatAmount(r.Price),
			Category: r.Category,
		})
	}
	if len(b.Records) > 0 {
		first := b.Records[0]
		v.MerchantName = first.Store
		v.TransactionDate = first.Date
		v.Currency = first.Currency
	}
	v.Total = fmt.Sprintf("%.2f", total)
	return v
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

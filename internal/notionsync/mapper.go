package notionsync

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/jomei/notionapi"

	"github.com/dvloznov/receipt-ledger/internal/receipt"
)

// Notion database property names.
const (
	PropItem     = "Item"
	PropRecordID = "Record ID"
	PropStore    = "Store"
	PropDate     = "Date"
	PropPrice    = "Price"
	PropQuantity = "Quantity"
	PropTotal    = "Total"
	PropCurrency = "Currency"
	PropCategory = "Category"
	PropCountry  = "Country"
	PropBackup   = "Backup"
	PropNote     = "Note"
)

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}}
}

// RecordToNotionProperties maps one receipt row to page properties.
// Date is only set when the row date is a valid calendar date.
func RecordToNotionProperties(backupID string, r receipt.Record) notionapi.Properties {
	props := notionapi.Properties{
		PropItem:     notionapi.TitleProperty{Title: richText(r.Item)},
		PropRecordID: notionapi.RichTextProperty{RichText: richText(r.ID)},
		PropStore:    notionapi.RichTextProperty{RichText: richText(r.Store)},
		PropPrice:    notionapi.NumberProperty{Number: r.Price},
		PropQuantity: notionapi.NumberProperty{Number: float64(r.Quantity)},
		PropTotal:    notionapi.NumberProperty{Number: r.Total()},
		PropCurrency: notionapi.SelectProperty{Select: notionapi.Option{Name: r.Currency}},
		PropCategory: notionapi.SelectProperty{Select: notionapi.Option{Name: r.Category}},
		PropCountry:  notionapi.SelectProperty{Select: notionapi.Option{Name: r.Country}},
		PropBackup:   notionapi.RichTextProperty{RichText: richText(backupID)},
	}

	if d, err := civil.ParseDate(r.Date); err == nil {
		start := notionapi.Date(d.In(time.UTC))
		props[PropDate] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: &start}}
	}
	if r.Narrative != "" {
		props[PropNote] = notionapi.RichTextProperty{RichText: richText(r.Narrative)}
	}
	return props
}

// extractRecordID returns the record id stored on a page, or "".
func extractRecordID(page notionapi.Page) string {
	if prop, ok := page.Properties[PropRecordID]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok && len(rt.RichText) > 0 {
			return rt.RichText[0].PlainText
		}
	}
	return ""
}

// extractBackupID returns the backup artifact a page was created from, or "".
func extractBackupID(page notionapi.Page) string {
	if prop, ok := page.Properties[PropBackup]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok && len(rt.RichText) > 0 {
			return rt.RichText[0].PlainText
		}
	}
	return ""
}

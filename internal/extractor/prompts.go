package extractor

import (
	"strings"

	"github.com/dvloznov/receipt-ledger/internal/receipt"
)

// DefaultLanguage is the report language for item names and narratives.
const DefaultLanguage = "Korean"

// structuringPrompt builds the fixed system instruction for Structure.
func structuringPrompt(language string) string {
	var b strings.Builder
	b.WriteString("You are a multilingual receipt parser and CSV formatter for a financial search system.\n")
	b.WriteString("Extract every purchased line item from the receipt text and return a CSV table.\n\n")

	b.WriteString("Columns (in order):\n")
	b.WriteString("1. id: a 32-character hexadecimal UUID per row, unique within the table\n")
	b.WriteString("2. store: the store name exactly as printed, do not translate\n")
	b.WriteString("3. date: format as YYYY-MM-DD if possible\n")
	b.WriteString("4. items: the item name translated to " + language + " unless it is a brand name\n")
	b.WriteString("5. price: numeric only, no currency symbol and no thousands separators\n")
	b.WriteString("6. currency: 3-letter code such as KRW, EUR, JPY, USD\n")
	b.WriteString("7. quantity: integer, 1 if missing\n")
	b.WriteString("8. category: exactly one of [" + strings.Join(receipt.Categories(), ", ") + "]\n")
	b.WriteString("9. country: infer from the currency\n")
	b.WriteString("10. content: one full sentence in " + language + " of the form\n")
	b.WriteString("    \"[date] [country] [store]: bought [items] for [price] [currency]\"\n\n")

	b.WriteString("Formatting rules:\n")
	b.WriteString("1. Output CSV only, with no explanation and no Markdown.\n")
	b.WriteString("2. The first line must be exactly: " + receipt.Header + "\n")
	b.WriteString("3. Wrap any field that contains a comma in double quotes.\n")
	return b.String()
}

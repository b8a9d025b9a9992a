package receipt

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header is the exact first line of every receipt table.
const Header = "id, store, date, items, price, currency, quantity, category, country, content"

// Column names in artifact order.
const (
	ColID       = "id"
	ColStore    = "store"
	ColDate     = "date"
	ColItems    = "items"
	ColPrice    = "price"
	ColCurrency = "currency"
	ColQuantity = "quantity"
	ColCategory = "category"
	ColCountry  = "country"
	ColContent  = "content"
)

// Columns lists the artifact columns in order.
var Columns = []string{ColID, ColStore, ColDate, ColItems, ColPrice, ColCurrency, ColQuantity, ColCategory, ColCountry, ColContent}

// utf8BOM lets spreadsheet tools detect the encoding.
const utf8BOM = "\uFEFF"

// Encode serializes records as a backup artifact: BOM, header line, one CSV row per record.
func Encode(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	buf.WriteString(Header)
	buf.WriteByte('\n')

	w := csv.NewWriter(&buf)
	for i, r := range records {
		row := []string{
			r.ID,
			r.Store,
			r.Date,
			r.Item,
			formatAmount(r.Price),
			r.Currency,
			strconv.Itoa(r.Quantity),
			r.Category,
			r.Country,
			r.Narrative,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("Encode: row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("Encode: flush: %w", err)
	}
	return buf.Bytes(), nil
}

// rawRow is one table row keyed by lower-case column name.
type rawRow map[string]string

// readTable reads delimited text with a header row. Rows that cannot be
// tokenized are reported through skip and dropped; the call only fails when
// the text has no usable header.
func readTable(r io.Reader, skip func(line int, err error)) ([]rawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: no header row", ErrMalformedBatch)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrMalformedBatch, err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, utf8BOM)))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	if _, ok := index[ColID]; !ok {
		return nil, fmt.Errorf("%w: header has no %q column", ErrMalformedBatch, ColID)
	}
	if _, ok := index[ColStore]; !ok {
		return nil, fmt.Errorf("%w: header has no %q column", ErrMalformedBatch, ColStore)
	}

	var rows []rawRow
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				if skip != nil {
					skip(perr.Line, err)
				}
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
		}
		if blankRecord(fields) {
			continue
		}

		row := make(rawRow, len(Columns))
		for name, i := range index {
			if i < len(fields) {
				row[name] = strings.TrimSpace(fields[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func blankRecord(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

package receipt

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/receipt-ledger/internal/currency"
	"github.com/dvloznov/receipt-ledger/internal/logger"
)

// BackupPrefix and BackupExt frame every backup artifact name.
const (
	BackupPrefix = "receipt_"
	BackupExt    = ".csv"
)

// Normalizer turns extractor tables into typed batches.
type Normalizer struct {
	rates *currency.Table
	newID func() string
	now   func() time.Time
}

// NewNormalizer creates a normalizer that infers countries from rates.
// A nil table means the default currency table.
func NewNormalizer(rates *currency.Table) *Normalizer {
	if rates == nil {
		rates = currency.Default()
	}
	return &Normalizer{
		rates: rates,
		newID: newRecordID,
		now:   time.Now,
	}
}

// NewBackupID returns a time-ordered artifact name such as
// receipt_20250102_150405_1a2b3c4d.csv.
func NewBackupID(t time.Time) string {
	return BackupPrefix + t.Format("20060102_150405") + "_" + newRecordID()[:8] + BackupExt
}

// IsBackupID reports whether name looks like a backup artifact name.
func IsBackupID(name string) bool {
	return strings.HasPrefix(name, BackupPrefix) && strings.HasSuffix(name, BackupExt)
}

func newRecordID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Parse normalizes a freshly extracted table into a new batch with a newly
// generated backup name. Individual malformed fields degrade to defaults;
// only a missing or unusable header fails with ErrMalformedBatch.
func (n *Normalizer) Parse(ctx context.Context, table string) (*Batch, error) {
	return n.Decode(ctx, NewBackupID(n.now().UTC()), []byte(table))
}

// Decode normalizes a table that already has a backup name, typically an
// artifact read back from durable storage.
func (n *Normalizer) Decode(ctx context.Context, backupID string, data []byte) (*Batch, error) {
	log := logger.FromContext(ctx)

	data = bytes.TrimPrefix(data, []byte(utf8BOM))
	rows, err := readTable(bytes.NewReader(data), func(line int, err error) {
		log.Warn().Err(err).Int("line", line).Str("backup_id", backupID).Msg("Skipping unreadable row")
	})
	if err != nil {
		return nil, fmt.Errorf("Decode: %w", err)
	}

	batch := &Batch{BackupID: backupID, Records: make([]Record, 0, len(rows))}
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		rec := n.normalizeRow(row)
		if _, dup := seen[rec.ID]; dup || !validID(rec.ID) {
			rec.ID = n.newID()
		}
		seen[rec.ID] = struct{}{}
		batch.Records = append(batch.Records, rec)
	}

	log.Debug().Str("backup_id", backupID).Int("records", len(batch.Records)).Msg("Normalized receipt table")
	return batch, nil
}

func (n *Normalizer) normalizeRow(row rawRow) Record {
	rec := Record{
		ID:        strings.TrimSpace(row[ColID]),
		Store:     row[ColStore],
		Date:      normalizeDate(row[ColDate]),
		Item:      row[ColItems],
		Price:     parsePrice(row[ColPrice]),
		Currency:  strings.ToUpper(strings.TrimSpace(row[ColCurrency])),
		Quantity:  parseQuantity(row[ColQuantity]),
		Category:  CoerceCategory(row[ColCategory]),
		Country:   strings.TrimSpace(row[ColCountry]),
		Narrative: row[ColContent],
	}
	if rec.Currency == "" {
		rec.Currency = NotAvailable
	}
	if rec.Country == "" {
		rec.Country = n.rates.Country(rec.Currency)
	}
	if rec.Country == "" {
		rec.Country = NotAvailable
	}
	return rec
}

func validID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// parsePrice reads a non-negative amount from locale-ambiguous text.
//
// Whitespace and currency symbols are ignored; any other character that is
// not part of a number makes the price unparseable (0). Exponents are
// accepted, so "1e5" is 100000.
//
// When both ',' and '.' appear, the right-most one is the decimal separator.
// A separator that appears more than once is a thousands separator. A single
// separator of either kind is a decimal point, so "49.000" and "49,000" are 49.
func parsePrice(raw string) float64 {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r), unicode.Is(unicode.Sc, r):
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-', r == '+', r == 'e', r == 'E':
			b.WriteRune(r)
		default:
			return 0
		}
	}
	s := b.String()
	if s == "" {
		return 0
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ",") > 1:
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	case lastComma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// maxQuantity bounds parsed quantities; larger values are treated as noise.
const maxQuantity = math.MaxInt32

// parseQuantity returns a positive count, defaulting to 1.
func parseQuantity(raw string) int {
	raw = strings.TrimSpace(raw)
	q, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		d, derr := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
		if derr != nil || d.GreaterThan(decimal.NewFromInt(maxQuantity)) {
			return 1
		}
		q = d.IntPart()
	}
	if q < 1 || q > maxQuantity {
		return 1
	}
	return int(q)
}

var dateLayouts = []string{
	"2006/01/02",
	"2006.01.02",
	"2006.1.2",
	"2006. 1. 2",
	"2006-1-2",
	"20060102",
	"2006년 1월 2일",
	"2006년 01월 02일",
	"02.01.2006",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// normalizeDate returns YYYY-MM-DD when raw is a recognizable date and raw
// unchanged otherwise.
func normalizeDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if d, err := civil.ParseDate(s); err == nil {
		return d.String()
	}
	trimmed := strings.TrimSuffix(s, ".")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return civil.DateOf(t).String()
		}
	}
	return s
}

// Package ledger aggregates receipt records into multi-currency spending
// summaries. Summaries are always recomputed from their source records and
// are never persisted.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/receipt-ledger/internal/archive"
	"github.com/dvloznov/receipt-ledger/internal/currency"
	"github.com/dvloznov/receipt-ledger/internal/logger"
	"github.com/dvloznov/receipt-ledger/internal/receipt"
)

// ErrNoUsableItems is returned by SummarizeBatch when no receipt
// contributes a positive amount.
var ErrNoUsableItems = errors.New("no usable spending items")

// Classifier assigns a category to an item description. It never fails.
type Classifier interface {
	Classify(ctx context.Context, item string) string
}

// CategoryTotal is one row of a per-category table.
type CategoryTotal struct {
	Category  string  `json:"category"`
	Original  float64 `json:"total_orig"`
	Reference float64 `json:"total_krw"`
}

// CurrencySummary is the report for all receipts paid in one currency.
type CurrencySummary struct {
	Currency       string          `json:"currency"`
	TotalOriginal  float64         `json:"total_orig"`
	TotalReference float64         `json:"total_krw"`
	Table          []CategoryTotal `json:"table_data"`
	ChartLabels    []string        `json:"chart_labels"`
	ChartData      []float64       `json:"chart_data"`
	ExchangeRate   float64         `json:"exchange_rate"`
}

// CountrySummary is the ledger for one country across all archived receipts.
// TotalOriginal sums amounts in every currency observed for the country;
// Currency is the currency of the first row seen and is a display label.
type CountrySummary struct {
	Country        string          `json:"country"`
	Currency       string          `json:"currency"`
	TotalOriginal  float64         `json:"total_orig"`
	TotalReference float64         `json:"total_krw"`
	Currencies     []string        `json:"currencies"`
	Categories     []CategoryTotal `json:"data"`
}

// Aggregator builds spending summaries.
type Aggregator struct {
	rates      *currency.Table
	classifier Classifier
	archive    *archive.Archive
}

// New creates an Aggregator. A nil rates table means the default table.
// classifier is only consulted for items without a valid category and may
// be nil, in which case such items fall back to receipt.FallbackCategory.
func New(rates *currency.Table, classifier Classifier, a *archive.Archive) *Aggregator {
	if rates == nil {
		rates = currency.Default()
	}
	return &Aggregator{rates: rates, classifier: classifier, archive: a}
}

// sums accumulates original and reference amounts per category.
type sums struct {
	original  map[string]decimal.Decimal
	reference map[string]decimal.Decimal
}

func newSums() *sums {
	return &sums{
		original:  make(map[string]decimal.Decimal),
		reference: make(map[string]decimal.Decimal),
	}
}

func (s *sums) add(category string, amount, rate decimal.Decimal) {
	s.original[category] = s.original[category].Add(amount)
	s.reference[category] = s.reference[category].Add(amount.Mul(rate))
}

// table returns the full fixed category set in enumeration order, zero-filled,
// together with the grand totals.
func (s *sums) table() ([]CategoryTotal, decimal.Decimal, decimal.Decimal) {
	var totalOrig, totalRef decimal.Decimal
	out := make([]CategoryTotal, 0, len(receipt.Categories()))
	for _, c := range receipt.Categories() {
		o, r := s.original[c], s.reference[c]
		totalOrig = totalOrig.Add(o)
		totalRef = totalRef.Add(r)
		out = append(out, CategoryTotal{Category: c, Original: o.InexactFloat64(), Reference: r.InexactFloat64()})
	}
	return out, totalOrig, totalRef
}

// participates reports whether rows in this currency count toward totals.
// The N/A placeholder only counts when the rate table maps it explicitly.
func (a *Aggregator) participates(code string) bool {
	return code != receipt.NotAvailable || a.rates.Known(code)
}

func (a *Aggregator) rate(code string) decimal.Decimal {
	return decimal.NewFromFloat(a.rates.Rate(code))
}

// SummarizeBatch reports on receipts processed in one session, grouped by
// currency. Every item with a positive price contributes; a receipt with no
// such item contributes its declared total under receipt.FallbackCategory.
func (a *Aggregator) SummarizeBatch(ctx context.Context, views []receipt.View) (map[string]CurrencySummary, error) {
	log := logger.FromContext(ctx)

	byCurrency := make(map[string]*sums)
	group := func(code string) *sums {
		s, ok := byCurrency[code]
		if !ok {
			s = newSums()
			byCurrency[code] = s
		}
		return s
	}

	for _, v := range views {
		code := strings.ToUpper(strings.TrimSpace(v.Currency))
		if code == "" {
			code = receipt.NotAvailable
		}
		if !a.participates(code) {
			log.Debug().Str("merchant", v.MerchantName).Msg("Skipping receipt without currency")
			continue
		}
		rate := a.rate(code)

		used := false
		for _, item := range v.Items {
			price := parseAmount(item.Price)
			if !price.IsPositive() {
				continue
			}
			group(code).add(a.category(ctx, item), price, rate)
			used = true
		}
		if used {
			continue
		}
		if total := parseAmount(v.Total); total.IsPositive() {
			group(code).add(receipt.FallbackCategory, total, rate)
		}
	}

	out := make(map[string]CurrencySummary, len(byCurrency))
	for code, s := range byCurrency {
		table, totalOrig, totalRef := s.table()
		if !totalOrig.IsPositive() {
			continue
		}
		sum := CurrencySummary{
			Currency:       code,
			TotalOriginal:  totalOrig.InexactFloat64(),
			TotalReference: totalRef.InexactFloat64(),
			Table:          table,
			ChartLabels:    []string{},
			ChartData:      []float64{},
			ExchangeRate:   a.rates.Rate(code),
		}
		for _, row := range table {
			if row.Original > 0 {
				sum.ChartLabels = append(sum.ChartLabels, row.Category)
				sum.ChartData = append(sum.ChartData, row.Original)
			}
		}
		out[code] = sum
	}

	if len(out) == 0 {
		return nil, ErrNoUsableItems
	}
	return out, nil
}

func (a *Aggregator) category(ctx context.Context, item receipt.ViewItem) string {
	if receipt.IsCategory(item.Category) {
		return item.Category
	}
	if a.classifier == nil {
		return receipt.FallbackCategory
	}
	return a.classifier.Classify(ctx, item.Name)
}

// SummarizeAll reloads every archived batch and reports per country.
// Unreadable and empty artifacts are skipped.
func (a *Aggregator) SummarizeAll(ctx context.Context) (map[string]CountrySummary, error) {
	if a.archive == nil {
		return nil, fmt.Errorf("SummarizeAll: no archive configured")
	}
	batches, err := a.archive.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("SummarizeAll: %w", err)
	}
	return a.SummarizeRecords(batches), nil
}

// SummarizeRecords groups the rows of batches by country and category.
func (a *Aggregator) SummarizeRecords(batches []*receipt.Batch) map[string]CountrySummary {
	type countryAcc struct {
		sums       *sums
		currencies []string
	}
	byCountry := make(map[string]*countryAcc)

	for _, b := range batches {
		for _, r := range b.Records {
			if !a.participates(r.Currency) {
				continue
			}
			country := r.Country
			if country == "" {
				country = receipt.NotAvailable
			}
			acc, ok := byCountry[country]
			if !ok {
				acc = &countryAcc{sums: newSums()}
				byCountry[country] = acc
			}
			if !slices.Contains(acc.currencies, r.Currency) {
				acc.currencies = append(acc.currencies, r.Currency)
			}

			qty := r.Quantity
			if qty < 1 {
				qty = 1
			}
			total := decimal.NewFromFloat(r.Price).Mul(decimal.NewFromInt(int64(qty)))
			acc.sums.add(receipt.CoerceCategory(r.Category), total, a.rate(r.Currency))
		}
	}

	out := make(map[string]CountrySummary, len(byCountry))
	for country, acc := range byCountry {
		table, totalOrig, totalRef := acc.sums.table()
		out[country] = CountrySummary{
			Country:        country,
			Currency:       acc.currencies[0],
			TotalOriginal:  totalOrig.InexactFloat64(),
			TotalReference: totalRef.InexactFloat64(),
			Currencies:     acc.currencies,
			Categories:     table,
		}
	}
	return out
}

// Countries returns the keys of summaries in sorted order.
func Countries(summaries map[string]CountrySummary) []string {
	names := make([]string, 0, len(summaries))
	for name := range summaries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parseAmount reads a display amount, treating ',' as a decimal point.
// Invalid or negative input is zero.
func parseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

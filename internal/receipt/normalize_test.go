package receipt

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/receipt-ledger/internal/currency"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"49.000", 49},
		{"49,000", 49},
		{"12,50", 12.5},
		{"12.50", 12.5},
		{"1,234.56", 1234.56},
		{"1.234,56", 1234.56},
		{"1,234,567", 1234567},
		{"1.234.567", 1234567},
		{"€ 3.50", 3.5},
		{"$7", 7},
		{"-5", 0},
		{"abc", 0},
		{"", 0},
		{"--5", 0},
		{"1e5", 100000},
		{"2.5E2", 250},
		{"12.50 EUR", 0},
		{"4x9", 0},
		{" 1 200 ", 1200},
		{"₩15,000", 15},
		{"¥ 1,234,567", 1234567},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parsePrice(tt.input); got != tt.want {
				t.Errorf("parsePrice(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 1},
		{"3", 3},
		{" 4 ", 4},
		{"0", 1},
		{"-2", 1},
		{"2.0", 2},
		{"x", 1},
		{"99999999999999999999", 1},
		{"99999999999999999999.5", 1},
		{"9999999999", 1},
		{"2147483647", 2147483647},
		{"1e3", 1000},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseQuantity(tt.input); got != tt.want {
				t.Errorf("parseQuantity(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2025-03-14", "2025-03-14"},
		{"2025/03/14", "2025-03-14"},
		{"2025.3.14", "2025-03-14"},
		{"2025.03.14.", "2025-03-14"},
		{"2025. 3. 14.", "2025-03-14"},
		{"2025년 3월 14일", "2025-03-14"},
		{"20250314", "2025-03-14"},
		{"yesterday", "yesterday"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizeDate(tt.input); got != tt.want {
				t.Errorf("normalizeDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse_SouvenirInEuros(t *testing.T) {
	n := NewNormalizer(currency.Default())
	table := Header + "\n" +
		`,Shop,2025-01-01,기념품,49.000,EUR,,쇼핑,,"I bought a souvenir, for 49 euros."` + "\n"

	batch, err := n.Parse(context.Background(), table)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(batch.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(batch.Records))
	}

	rec := batch.Records[0]
	if rec.Price != 49.0 {
		t.Errorf("Price = %v, want 49", rec.Price)
	}
	if rec.Quantity != 1 {
		t.Errorf("Quantity = %d, want 1", rec.Quantity)
	}
	if rec.Category != CategoryShopping {
		t.Errorf("Category = %q, want %q", rec.Category, CategoryShopping)
	}
	if rec.Country != "유럽" {
		t.Errorf("Country = %q, want inferred 유럽", rec.Country)
	}
	if rec.Narrative != "I bought a souvenir, for 49 euros." {
		t.Errorf("Narrative = %q, quoted delimiter not honored", rec.Narrative)
	}
	if len(rec.ID) != 32 {
		t.Errorf("ID = %q, want generated 32-char id", rec.ID)
	}
	if !IsBackupID(batch.BackupID) {
		t.Errorf("BackupID = %q, want receipt_*.csv", batch.BackupID)
	}
}

func TestParse_RoundTripIsIdempotent(t *testing.T) {
	n := NewNormalizer(nil)
	table := "\uFEFF" + Header + "\n" +
		`a1,"Café ""Blue""",2025/02/03,"Coffee, large","4,50",eur,2,식비,France,"Two large coffees."` + "\n" +
		`,마트,yesterday,물,"1,200",krw,x,Food,,` + "\n" +
		`,Hotel,2025-02-04,Room,-80,USD,1,숙박비,,"One night."` + "\n"

	first, err := n.Parse(context.Background(), table)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	data, err := Encode(first.Records)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	second, err := n.Decode(context.Background(), first.BackupID, data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("round trip changed the batch:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestParse_FieldInvariants(t *testing.T) {
	n := NewNormalizer(nil)
	table := Header + "\n" +
		`,A,,x,-1,,-3,,,` + "\n" +
		`,B,,y,garbage,usd,0,nonsense,,` + "\n" +
		`,C,,z,,jpy,,,,` + "\n"

	batch, err := n.Parse(context.Background(), table)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	for _, r := range batch.Records {
		if r.Price < 0 {
			t.Errorf("%s: Price = %v, want >= 0", r.Store, r.Price)
		}
		if r.Quantity < 1 {
			t.Errorf("%s: Quantity = %d, want >= 1", r.Store, r.Quantity)
		}
		if !IsCategory(r.Category) {
			t.Errorf("%s: Category = %q, not in the fixed set", r.Store, r.Category)
		}
		if r.Currency == "" {
			t.Errorf("%s: Currency empty, want N/A fallback", r.Store)
		}
	}
	if got := batch.Records[0].Currency; got != NotAvailable {
		t.Errorf("blank currency = %q, want %q", got, NotAvailable)
	}
	if got := batch.Records[0].Country; got != NotAvailable {
		t.Errorf("country for N/A currency = %q, want %q", got, NotAvailable)
	}
}

func TestParse_IDs(t *testing.T) {
	n := NewNormalizer(nil)
	valid := "0f8fad5b-d9cb-469f-a165-70867728950e"
	table := Header + "\n" +
		valid + ",A,,x,1,KRW,1,식비,,a" + "\n" +
		valid + ",B,,y,1,KRW,1,식비,,b" + "\n" +
		"not-a-uuid,C,,z,1,KRW,1,식비,,c" + "\n"

	batch, err := n.Parse(context.Background(), table)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	ids := batch.IDs()
	if ids[0] != valid {
		t.Errorf("first id = %q, want kept %q", ids[0], valid)
	}
	if ids[1] == valid {
		t.Error("duplicate id was not regenerated")
	}
	if ids[2] == "not-a-uuid" {
		t.Error("malformed id was not regenerated")
	}
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Errorf("id %q is not unique", id)
		}
		seen[id] = true
	}
}

func TestParse_BlankNarrativeKeptButNotIndexable(t *testing.T) {
	n := NewNormalizer(nil)
	table := Header + "\n" +
		",A,,x,10,KRW,1,식비,,Ate lunch." + "\n" +
		",B,,y,20,KRW,1,식비,,   " + "\n"

	batch, err := n.Parse(context.Background(), table)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(batch.Records))
	}
	if got := len(batch.Indexable()); got != 1 {
		t.Errorf("Indexable() = %d records, want 1", got)
	}
}

func TestParse_MalformedBatch(t *testing.T) {
	n := NewNormalizer(nil)

	tests := []struct {
		name  string
		table string
	}{
		{"empty", ""},
		{"prose", "Sorry, I could not read this receipt."},
		{"missing id column", "store, price\nShop, 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Parse(context.Background(), tt.table)
			if !errors.Is(err, ErrMalformedBatch) {
				t.Errorf("Parse() error = %v, want ErrMalformedBatch", err)
			}
		})
	}
}

func TestParse_HeaderOnlyIsEmptyBatch(t *testing.T) {
	batch, err := NewNormalizer(nil).Parse(context.Background(), Header+"\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(batch.Records) != 0 {
		t.Errorf("got %d records, want 0", len(batch.Records))
	}
}

func TestNewBackupID(t *testing.T) {
	at := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)
	id := NewBackupID(at)

	if !strings.HasPrefix(id, "receipt_20250102_150405_") {
		t.Errorf("NewBackupID() = %q, want time-ordered prefix", id)
	}
	if !strings.HasSuffix(id, ".csv") || len(id) != 36 {
		t.Errorf("NewBackupID() = %q, unexpected shape", id)
	}
	if NewBackupID(at) == id {
		t.Error("two backup ids for the same second collided")
	}
}

func TestEncode_Format(t *testing.T) {
	data, err := Encode([]Record{{
		ID: "1", Store: "Shop", Date: "2025-01-01", Item: "Tea, green",
		Price: 3.5, Currency: "USD", Quantity: 2, Category: CategoryFood,
		Country: "미국", Narrative: "Tea.",
	}})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	want := "\uFEFF" + Header + "\n" +
		`1,Shop,2025-01-01,"Tea, green",3.5,USD,2,식비,미국,Tea.` + "\n"
	if string(data) != want {
		t.Errorf("Encode() =\n%q\nwant\n%q", data, want)
	}
}

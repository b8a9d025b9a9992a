package receipt

import "strings"

// The closed set of spending categories, in report order.
const (
	CategoryTransport  = "교통비"
	CategoryLodging    = "숙박비"
	CategoryFood       = "식비"
	CategoryActivities = "입장료및 체험 활동비"
	CategoryShopping   = "쇼핑 및 기념품비"
	CategoryOther      = "기타"
)

// FallbackCategory is used whenever a category cannot be determined.
const FallbackCategory = CategoryOther

var categories = [...]string{
	CategoryTransport,
	CategoryLodging,
	CategoryFood,
	CategoryActivities,
	CategoryShopping,
	CategoryOther,
}

// Categories returns the fixed category set in enumeration order.
func Categories() []string {
	out := make([]string, len(categories))
	copy(out, categories[:])
	return out
}

// IsCategory reports whether s is exactly one of the fixed categories.
func IsCategory(s string) bool {
	for _, c := range categories {
		if c == s {
			return true
		}
	}
	return false
}

// CoerceCategory maps free-form extractor output onto the fixed set.
// Matching ignores spaces, '&' and the conjunction '및', then falls back to
// prefix matching in enumeration order, then to FallbackCategory.
func CoerceCategory(raw string) string {
	raw = strings.TrimSpace(raw)
	if IsCategory(raw) {
		return raw
	}

	key := categoryKey(raw)
	if key == "" {
		return FallbackCategory
	}
	for _, c := range categories {
		if categoryKey(c) == key {
			return c
		}
	}
	for _, c := range categories {
		ck := categoryKey(c)
		if strings.HasPrefix(ck, key) || strings.HasPrefix(key, ck) {
			return c
		}
	}
	return FallbackCategory
}

var categoryKeyReplacer = strings.NewReplacer(" ", "", "&", "", "및", "", "\t", "")

func categoryKey(s string) string {
	return categoryKeyReplacer.Replace(strings.TrimSpace(s))
}

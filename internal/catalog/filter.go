package catalog

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// AllCategories disables the category filter.
const AllCategories = "all"

const (
	SortNone      = ""
	SortPriceAsc  = "price-asc"
	SortPriceDesc = "price-desc"
	SortNameAsc   = "name-asc"
)

type Query struct {
	Search   string
	Category string
	SortBy   string
}

// Filter narrows by search term, then by category, then stable-sorts.
// The input slice is not modified.
func Filter(products []Product, q Query) []Product {
	term := strings.ToLower(q.Search)

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if term != "" &&
			!strings.Contains(strings.ToLower(p.Name), term) &&
			!strings.Contains(strings.ToLower(p.Description), term) {
			continue
		}
		if q.Category != "" && q.Category != AllCategories && p.Category != q.Category {
			continue
		}
		out = append(out, p)
	}

	switch q.SortBy {
	case SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	case SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	case SortNameAsc:
		// collators are not safe for concurrent use
		c := collate.New(language.Spanish)
		sort.SliceStable(out, func(i, j int) bool {
			return c.CompareString(out[i].Name, out[j].Name) < 0
		})
	}
	return out
}

// ValidSort reports whether key is a known sort key.
func ValidSort(key string) bool {
	switch key {
	case SortNone, SortPriceAsc, SortPriceDesc, SortNameAsc:
		return true
	}
	return false
}

// Filter applies q to the loaded catalog.
func (s *Service) Filter(q Query) []Product {
	return Filter(s.Products(), q)
}

// Package catalog serves the read-only product catalog.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"storefront/internal/logger"
)

//go:embed products.yaml
var embeddedCatalog []byte

const embeddedSource = "embedded"

type Service struct {
	products   []Product
	byID       map[int]Product
	categories []Category
	source     string

	lastLoaded time.Time
	mutex      sync.RWMutex
}

func NewService() *Service {
	return &Service{byID: make(map[int]Product)}
}

// Load reads path, or the embedded catalog when path is empty.
func (s *Service) Load(path string) error {
	if path == "" {
		return s.LoadEmbedded()
	}
	return s.LoadFromFile(path)
}

func (s *Service) LoadEmbedded() error {
	data, err := parse(embeddedCatalog, ".yaml")
	if err != nil {
		return fmt.Errorf("failed to parse embedded catalog: %w", err)
	}
	return s.replace(data, embeddedSource)
}

// LoadFromFile reads a YAML or JSON catalog, chosen by extension.
func (s *Service) LoadFromFile(path string) error {
	logger.LogInfo("Loading catalog from file: %s", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	data, err := parse(raw, filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}
	return s.replace(data, path)
}

func parse(raw []byte, ext string) (Data, error) {
	var data Data
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(raw, &data); err != nil {
			return Data{}, err
		}
	default:
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return Data{}, err
		}
	}
	return data, validate(data)
}

func validate(data Data) error {
	seen := make(map[int]bool, len(data.Products))
	for _, p := range data.Products {
		if seen[p.ID] {
			return fmt.Errorf("duplicate product id %d", p.ID)
		}
		seen[p.ID] = true
		if p.Name == "" {
			return fmt.Errorf("product %d has no name", p.ID)
		}
		if p.Price < 0 {
			return fmt.Errorf("product %d has negative price", p.ID)
		}
		if p.Stock < 0 {
			return fmt.Errorf("product %d has negative stock", p.ID)
		}
	}
	return nil
}

func (s *Service) replace(data Data, source string) error {
	byID := make(map[int]Product, len(data.Products))
	for _, p := range data.Products {
		byID[p.ID] = p
	}

	s.mutex.Lock()
	s.products = data.Products
	s.byID = byID
	s.categories = data.Categories
	s.source = source
	s.lastLoaded = time.Now()
	s.mutex.Unlock()

	logger.LogInfo("Successfully loaded catalog: %d products, %d categories from %s",
		len(data.Products), len(data.Categories), source)
	return nil
}

// Products returns every product in catalog order.
func (s *Service) Products() []Product {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]Product, len(s.products))
	copy(out, s.products)
	return out
}

func (s *Service) Categories() []Category {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]Category, len(s.categories))
	copy(out, s.categories)
	return out
}

func (s *Service) ProductByID(id int) (Product, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	p, ok := s.byID[id]
	return p, ok
}

func (s *Service) Popular() []Product {
	return keep(s.Products(), func(p Product) bool { return p.Popular })
}

// ByCategory returns all products for "all" or an empty id.
func (s *Service) ByCategory(categoryID string) []Product {
	if categoryID == "" || categoryID == AllCategories {
		return s.Products()
	}
	return keep(s.Products(), func(p Product) bool { return p.Category == categoryID })
}

// Related lists up to limit other products from the same category.
func (s *Service) Related(id, limit int) []Product {
	p, ok := s.ProductByID(id)
	if !ok {
		return []Product{}
	}

	out := keep(s.ByCategory(p.Category), func(other Product) bool { return other.ID != id })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Service) IsStale(maxAge time.Duration) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return time.Since(s.lastLoaded) > maxAge
}

func (s *Service) CacheAge() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return time.Since(s.lastLoaded)
}

// GetStats returns catalog statistics for debugging/monitoring
func (s *Service) GetStats() Stats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	st := Stats{
		Products:   len(s.products),
		Categories: len(s.categories),
		Source:     s.source,
		LastLoaded: s.lastLoaded.Format(time.RFC3339),
		CacheAge:   time.Since(s.lastLoaded).Round(time.Second).String(),
	}
	for i, p := range s.products {
		if p.Popular {
			st.Popular++
		}
		if p.Stock == 0 {
			st.OutOfStock++
		}
		if i == 0 || p.Price < st.MinPrice {
			st.MinPrice = p.Price
		}
		if p.Price > st.MaxPrice {
			st.MaxPrice = p.Price
		}
	}
	return st
}

func keep(ps []Product, pred func(Product) bool) []Product {
	out := make([]Product, 0, len(ps))
	for _, p := range ps {
		if pred(p) {
			out = append(out, p)
		}
	}
	return out
}

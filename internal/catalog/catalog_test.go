package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func loaded(t *testing.T) *Service {
	t.Helper()
	s := NewService()
	require.NoError(t, s.Load(""))
	return s
}

func names(ps []Product) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestEmbeddedCatalog(t *testing.T) {
	s := loaded(t)

	assert.Len(t, s.Products(), 12)
	assert.Len(t, s.Categories(), 5)

	p, ok := s.ProductByID(2)
	require.True(t, ok)
	assert.Equal(t, "Lomo Fino", p.Name)
	assert.Equal(t, 15, p.Stock)

	_, ok = s.ProductByID(999)
	assert.False(t, ok)

	assert.Len(t, s.Popular(), 7)
	assert.Len(t, s.ByCategory("aves"), 2)
	assert.Len(t, s.ByCategory(AllCategories), 12)

	st := s.GetStats()
	assert.Equal(t, 12, st.Products)
	assert.Equal(t, 9.99, st.MinPrice)
	assert.Equal(t, 39.99, st.MaxPrice)
	assert.Equal(t, "embedded", st.Source)
	assert.False(t, s.IsStale(time.Hour))
}

func TestRelated(t *testing.T) {
	s := loaded(t)

	related := s.Related(2, 4)
	assert.Len(t, related, 4)
	for _, p := range related {
		assert.Equal(t, "res", p.Category)
		assert.NotEqual(t, 2, p.ID)
	}
	assert.Empty(t, s.Related(999, 4))
}

func TestFilterSearchLomo(t *testing.T) {
	got := loaded(t).Filter(Query{Search: "lomo", Category: AllCategories, SortBy: SortPriceAsc})
	assert.Equal(t, []string{"Lomo Fino"}, names(got))
}

func TestFilterSearchIsCaseInsensitiveOnDescription(t *testing.T) {
	got := loaded(t).Filter(Query{Search: "HORNO"})
	assert.Equal(t, []string{"Costillas de Cerdo", "Pollo Entero", "Panceta de Cerdo"}, names(got))
}

func TestFilterCategoryAndSort(t *testing.T) {
	s := loaded(t)

	got := s.Filter(Query{Category: "cerdo", SortBy: SortPriceDesc})
	assert.Equal(t, []string{"Costillas de Cerdo", "Panceta de Cerdo"}, names(got))

	got = s.Filter(Query{Category: "aves", SortBy: SortPriceAsc})
	assert.Equal(t, []string{"Pechuga de Pollo", "Pollo Entero"}, names(got))

	got = s.Filter(Query{Category: "nope"})
	assert.Empty(t, got)
}

func TestFilterNoSortKeepsCatalogOrder(t *testing.T) {
	got := loaded(t).Filter(Query{Category: "res"})
	assert.Equal(t, []string{
		"Bife de Chorizo Premium", "Lomo Fino", "T-Bone Steak", "Entraña", "Tomahawk Steak", "Picaña",
	}, names(got))
}

func TestFilterSortIsStable(t *testing.T) {
	products := []Product{
		{ID: 1, Name: "b", Price: 5},
		{ID: 2, Name: "a", Price: 5},
		{ID: 3, Name: "c", Price: 1},
	}

	got := Filter(products, Query{SortBy: SortPriceAsc})
	assert.Equal(t, []int{3, 1, 2}, []int{got[0].ID, got[1].ID, got[2].ID})

	got = Filter(products, Query{SortBy: SortPriceDesc})
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].ID, got[1].ID, got[2].ID})

	assert.Equal(t, "b", products[0].Name, "input is not reordered")
}

func TestFilterNameSortUsesSpanishCollation(t *testing.T) {
	products := []Product{
		{ID: 1, Name: "Ñandú"},
		{ID: 2, Name: "Ostra"},
		{ID: 3, Name: "Nuez"},
		{ID: 4, Name: "árbol"},
		{ID: 5, Name: "Bife"},
	}

	got := Filter(products, Query{SortBy: SortNameAsc})
	assert.Equal(t, []string{"árbol", "Bife", "Nuez", "Ñandú", "Ostra"}, names(got))
}

func TestValidSort(t *testing.T) {
	assert.True(t, ValidSort(""))
	assert.True(t, ValidSort(SortNameAsc))
	assert.False(t, ValidSort("name-desc"))
}

func TestLoadFromFileFormats(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"products": [{"id": 1, "name": "Morcilla", "price": 7.5, "category": "embutidos", "stock": 3}],
		"categories": [{"id": "embutidos", "name": "Embutidos"}]
	}`), 0o644))

	s := NewService()
	require.NoError(t, s.LoadFromFile(jsonPath))
	assert.Equal(t, []string{"Morcilla"}, names(s.Products()))

	dupPath := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dupPath, []byte(`
products:
  - {id: 1, name: A, price: 1}
  - {id: 1, name: B, price: 2}
`), 0o644))
	assert.Error(t, s.LoadFromFile(dupPath))
	assert.Equal(t, []string{"Morcilla"}, names(s.Products()), "failed load keeps the previous catalog")
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("products:\n  - {id: 1, name: Uno, price: 1}\n"), 0o644))

	s := NewService()
	require.NoError(t, s.LoadFromFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, path) }()

	// let the watcher register before writing
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("products:\n  - {id: 1, name: Uno, price: 1}\n  - {id: 2, name: Dos, price: 2}\n"), 0o644))

	assert.Eventually(t, func() bool { return len(s.Products()) == 2 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

package api

import (
	"net/http"
	"strconv"

	"storefront/internal/catalog"
	"storefront/internal/middleware"
)

const relatedLimit = 4

type productDetail struct {
	Product catalog.Product   `json:"product"`
	Related []catalog.Product `json:"related"`
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := catalog.Query{
		Search:   q.Get("q"),
		Category: q.Get("category"),
		SortBy:   q.Get("sort"),
	}
	if !catalog.ValidSort(query.SortBy) {
		middleware.WriteError(w, r, http.StatusBadRequest, middleware.APIError{
			Code:    "invalid_sort",
			Message: "Unknown sort key",
			Fields:  map[string]string{"sort": query.SortBy},
		})
		return
	}

	middleware.WriteAPISuccess(w, r, s.catalog.Filter(query))
}

func (s *Server) handlePopularProducts(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, s.catalog.Popular())
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, s.catalog.Categories())
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeProductNotFound(w, r)
		return
	}
	p, ok := s.catalog.ProductByID(id)
	if !ok {
		writeProductNotFound(w, r)
		return
	}

	middleware.WriteAPISuccess(w, r, productDetail{
		Product: p,
		Related: s.catalog.Related(id, relatedLimit),
	})
}

func writeProductNotFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, r, http.StatusNotFound, middleware.APIError{
		Code:     "product_not_found",
		Message:  "Producto no encontrado",
		Redirect: "/productos",
	})
}

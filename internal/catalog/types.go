package catalog

// Data is the catalog file layout.
type Data struct {
	Products   []Product  `json:"products" yaml:"products"`
	Categories []Category `json:"categories" yaml:"categories"`
}

type Product struct {
	ID          int     `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Price       float64 `json:"price" yaml:"price"`
	Category    string  `json:"category" yaml:"category"`
	Image       string  `json:"image" yaml:"image"`
	Weight      string  `json:"weight" yaml:"weight"`
	Popular     bool    `json:"popular" yaml:"popular"`
	Stock       int     `json:"stock" yaml:"stock"`
}

type Category struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Stats summarizes the loaded catalog.
type Stats struct {
	Products   int     `json:"products"`
	Categories int     `json:"categories"`
	Popular    int     `json:"popular"`
	OutOfStock int     `json:"outOfStock"`
	Source     string  `json:"source"`
	LastLoaded string  `json:"lastLoaded"`
	CacheAge   string  `json:"cacheAge"`
	MinPrice   float64 `json:"minPrice"`
	MaxPrice   float64 `json:"maxPrice"`
}

package fakebackend

import (
	"sort"
	"sync"

	"github.com/nikolayk812/storefront-checkout/internal/domain"
)

type Product struct {
	ID    int64
	Name  string
	Price domain.Money
	Image string
	Stock int
}

// Catalog is the in-memory product list with stock levels.
type Catalog struct {
	mu       sync.RWMutex
	products map[int64]Product
	nextID   int64
}

func NewCatalog(products ...Product) *Catalog {
	c := &Catalog{products: map[int64]Product{}}
	for _, p := range products {
		c.Add(p)
	}
	return c
}

// Add stores the product, assigning an ID when it has none.
func (c *Catalog) Add(p Product) Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.ID == 0 {
		c.nextID++
		p.ID = c.nextID
	}
	c.nextID = max(c.nextID, p.ID)

	c.products[p.ID] = p
	return p
}

func (c *Catalog) Get(id int64) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	return p, ok
}

func (c *Catalog) SetStock(id int64, stock int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return false
	}
	p.Stock = stock
	c.products[id] = p
	return true
}

func (c *Catalog) List() []Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

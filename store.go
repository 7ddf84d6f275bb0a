package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProductStore persists products and their display order.
type ProductStore interface {
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	CreateProduct(ctx context.Context, np NewProduct) (Product, error)
	UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error)
	SetSold(ctx context.Context, id string, sold *bool) (Product, error)
	DeleteProduct(ctx context.Context, id string) (Product, error)
	Reorder(ctx context.Context, id string, d Direction) (ReorderResult, error)
}

// SettingsStore persists the site-settings singleton.
type SettingsStore interface {
	GetSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, p SettingsPatch) (Settings, error)
}

// memStore is the DEV_MODE store: everything lives in process memory.
type memStore struct {
	mu       sync.Mutex
	products map[string]Product
	settings *Settings
	now      func() time.Time
}

func newMemStore() *memStore {
	return &memStore{products: make(map[string]Product), now: time.Now}
}

func (m *memStore) sorted() []Product {
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsSold != out[j].IsSold {
			return !out[i].IsSold
		}
		return out[i].Order < out[j].Order
	})
	return out
}

func (m *memStore) ListProducts(_ context.Context, f ProductFilter) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Product{}
	for _, p := range m.sorted() {
		if f.match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetProduct(_ context.Context, id string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (m *memStore) CreateProduct(_ context.Context, np NewProduct) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 0
	for _, p := range m.products {
		if p.Order >= next {
			next = p.Order + 1
		}
	}
	now := m.now().UTC()
	p := Product{
		ID:            uuid.NewString(),
		Title:         np.Title,
		Description:   np.Description,
		Size:          np.Size,
		Technique:     np.Technique,
		Price:         np.Price,
		ImageURL:      np.ImageURL,
		ImagePublicID: np.ImagePublicID,
		Order:         next,
		IsSold:        np.IsSold,
		IsPublished:   np.IsPublished,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.products[p.ID] = p
	return p, nil
}

func (m *memStore) UpdateProduct(_ context.Context, id string, patch ProductPatch) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	if patch.empty() {
		return p, nil
	}
	patch.apply(&p)
	p.UpdatedAt = m.now().UTC()
	m.products[id] = p
	return p, nil
}

func (m *memStore) SetSold(_ context.Context, id string, sold *bool) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	if sold != nil {
		p.IsSold = *sold
	} else {
		p.IsSold = !p.IsSold
	}
	p.UpdatedAt = m.now().UTC()
	m.products[id] = p
	return p, nil
}

func (m *memStore) DeleteProduct(_ context.Context, id string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	delete(m.products, id)
	return p, nil
}

// Reorder performs the neighbour swap under the store mutex.
func (m *memStore) Reorder(_ context.Context, id string, d Direction) (ReorderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.products[id]
	if !ok {
		return ReorderResult{}, ErrNotFound
	}
	sib, found := findSibling(m.sorted(), cur, d)
	if !found {
		return ReorderResult{ProductID: id, ProductOrder: cur.Order}, nil
	}
	now := m.now().UTC()
	cur.Order, sib.Order = sib.Order, cur.Order
	cur.UpdatedAt, sib.UpdatedAt = now, now
	m.products[cur.ID] = cur
	m.products[sib.ID] = sib
	return ReorderResult{
		Moved:        true,
		ProductID:    cur.ID,
		SiblingID:    sib.ID,
		ProductOrder: cur.Order,
		SiblingOrder: sib.Order,
	}, nil
}

func (m *memStore) GetSettings(context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return defaultSettings(), nil
	}
	return m.settings.withDefaults(), nil
}

func (m *memStore) UpdateSettings(_ context.Context, p SettingsPatch) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Settings
	if m.settings != nil {
		s = *m.settings
	} else {
		s = defaultSettings()
		p.forNewRecord()
	}
	p.apply(&s)
	m.settings = &s
	return s.withDefaults(), nil
}

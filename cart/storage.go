package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Storage loads and saves a whole cart.
type Storage interface {
	Load() (Cart, error)
	Save(Cart) error
}

// FileStorage keeps the cart as a JSON array in a local file.
type FileStorage struct {
	Path string
}

// Load returns an empty cart when the file does not exist yet.
func (fs FileStorage) Load() (Cart, error) {
	b, err := os.ReadFile(fs.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Cart{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse cart: %w", err)
	}
	cleaned := make(Cart, 0, len(c))
	for _, it := range c {
		if it.ID != "" && it.Quantity > 0 {
			cleaned = append(cleaned, it)
		}
	}
	return cleaned, nil
}

// Save writes to a temp file and renames it over the old one.
func (fs FileStorage) Save(c Cart) error {
	if c == nil {
		c = Cart{}
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	dir := filepath.Dir(fs.Path)
	tmp, err := os.CreateTemp(dir, ".cart-*.json")
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("save cart: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.Path); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Store is a cart that is saved after every change.
type Store struct {
	mu      sync.Mutex
	storage Storage
	cart    Cart
}

// Open loads the saved cart. Unreadable data is logged and the cart starts empty.
func Open(s Storage) *Store {
	c, err := s.Load()
	if err != nil {
		log.Printf("cart: failed to load saved cart, starting empty: %v", err)
		c = Cart{}
	}
	return &Store{storage: s, cart: c}
}

func (s *Store) update(fn func(Cart) Cart) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.cart)
	if err := s.storage.Save(next); err != nil {
		return s.cart.clone(), err
	}
	s.cart = next
	return next.clone(), nil
}

func (s *Store) Add(p Product) (Cart, error) {
	return s.update(func(c Cart) Cart { return c.Add(p) })
}

func (s *Store) Remove(id string) (Cart, error) {
	return s.update(func(c Cart) Cart { return c.Remove(id) })
}

func (s *Store) Clear() (Cart, error) {
	return s.update(func(c Cart) Cart { return c.Clear() })
}

// Items returns a copy of the current cart.
func (s *Store) Items() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.clone()
}

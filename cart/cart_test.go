package cart

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

var (
	painting = Product{ID: "p1", Title: "Bloom", Price: decimal.NewFromInt(100), Size: "50x70"}
	sketch   = Product{ID: "p2", Title: "Line", Price: decimal.NewFromInt(50), Size: "A4"}
)

func TestCartArithmetic(t *testing.T) {
	c := Cart{}.Add(painting).Add(painting).Add(sketch)
	if c.TotalItems() != 3 || !c.TotalPrice().Equal(decimal.NewFromInt(250)) {
		t.Fatalf("items=%d total=%s, want 3 / 250", c.TotalItems(), c.TotalPrice())
	}
	if len(c) != 2 {
		t.Fatalf("lines = %d, want one per product", len(c))
	}

	c = c.Remove(painting.ID)
	if c.TotalItems() != 2 || !c.TotalPrice().Equal(decimal.NewFromInt(150)) {
		t.Fatalf("items=%d total=%s, want 2 / 150", c.TotalItems(), c.TotalPrice())
	}

	c = c.Remove(sketch.ID)
	if len(c) != 1 || c[0].ID != painting.ID {
		t.Fatalf("removing the last unit should drop the line: %+v", c)
	}
	if got := c.Remove("unknown"); len(got) != 1 {
		t.Fatalf("unknown id changed the cart")
	}
	if c.Clear().TotalItems() != 0 {
		t.Fatalf("clear left items")
	}
}

func TestTransitionsArePure(t *testing.T) {
	base := Cart{}.Add(painting)
	_ = base.Add(painting)
	_ = base.Remove(painting.ID)
	_ = base.Clear()
	if len(base) != 1 || base[0].Quantity != 1 {
		t.Fatalf("original cart mutated: %+v", base)
	}
}

func TestMessageAndLink(t *testing.T) {
	c := Cart{}.Add(painting).Add(painting).Add(sketch)
	msg := Message(c)
	want := greeting + "\n\n" +
		"- Bloom (50x70) x2 - 200 ₺\n" +
		"- Line (A4) x1 - 50 ₺\n\n" +
		"Toplam: 250 ₺"
	if msg != want {
		t.Fatalf("message =\n%s\nwant\n%s", msg, want)
	}

	link := WhatsAppLink("+90 545 279 83 15", msg)
	if !strings.HasPrefix(link, "https://wa.me/905452798315?text=") {
		t.Fatalf("link = %s", link)
	}
	if strings.Contains(link, "+") {
		t.Fatalf("spaces must be encoded as %%20: %s", link)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	if got := u.Query().Get("text"); got != msg {
		t.Fatalf("decoded text = %q", got)
	}
}

func TestFileStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cart.json")
	s := Open(FileStorage{Path: path})
	if len(s.Items()) != 0 {
		t.Fatalf("new store not empty")
	}
	if _, err := s.Add(painting); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.Add(sketch); err != nil {
		t.Fatalf("add: %v", err)
	}

	reopened := Open(FileStorage{Path: path})
	c := reopened.Items()
	if c.TotalItems() != 2 || !c.TotalPrice().Equal(decimal.NewFromInt(150)) {
		t.Fatalf("reloaded cart = %+v", c)
	}
	if _, err := reopened.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := Open(FileStorage{Path: path}).Items(); len(got) != 0 {
		t.Fatalf("cleared cart reloaded with %d lines", len(got))
	}
}

func TestOpenIgnoresCorruptData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cart.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := Open(FileStorage{Path: path}).Items(); len(got) != 0 {
		t.Fatalf("corrupt cart should start empty, got %+v", got)
	}
}

type failingStorage struct{}

func (failingStorage) Load() (Cart, error) { return Cart{}, nil }
func (failingStorage) Save(Cart) error     { return errors.New("disk full") }

func TestStoreKeepsStateWhenSaveFails(t *testing.T) {
	s := Open(failingStorage{})
	if _, err := s.Add(painting); err == nil {
		t.Fatalf("expected save error")
	}
	if len(s.Items()) != 0 {
		t.Fatalf("failed save should not change the cart")
	}
}

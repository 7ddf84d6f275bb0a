package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func seedProducts(t *testing.T, m *memStore, n int) []Product {
	t.Helper()
	out := make([]Product, 0, n)
	for i := 0; i < n; i++ {
		p, err := m.CreateProduct(context.Background(), NewProduct{
			Title:       fmt.Sprintf("Work %d", i),
			Price:       decimal.NewFromInt(int64(100 * (i + 1))),
			IsPublished: true,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func orders(t *testing.T, m *memStore) map[string]int {
	t.Helper()
	all, err := m.ListProducts(context.Background(), ProductFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	out := make(map[string]int, len(all))
	for _, p := range all {
		out[p.ID] = p.Order
	}
	return out
}

func assertDistinctPerPartition(t *testing.T, m *memStore) {
	t.Helper()
	all, _ := m.ListProducts(context.Background(), ProductFilter{})
	seen := map[bool]map[int]string{false: {}, true: {}}
	for _, p := range all {
		if other, dup := seen[p.IsSold][p.Order]; dup {
			t.Fatalf("order %d shared by %s and %s (sold=%t)", p.Order, other, p.ID, p.IsSold)
		}
		seen[p.IsSold][p.Order] = p.ID
	}
}

func TestCreateAssignsNextOrder(t *testing.T) {
	m := newMemStore()
	ps := seedProducts(t, m, 3)
	for i, p := range ps {
		if p.Order != i {
			t.Fatalf("product %d: order = %d, want %d", i, p.Order, i)
		}
	}
}

func TestReorderKeepsOrdersDistinct(t *testing.T) {
	m := newMemStore()
	ps := seedProducts(t, m, 6)
	sold := true
	for _, i := range []int{1, 4} {
		if _, err := m.SetSold(context.Background(), ps[i].ID, &sold); err != nil {
			t.Fatalf("set sold: %v", err)
		}
	}
	moves := []struct {
		idx int
		d   Direction
	}{
		{0, DirectionDown}, {5, DirectionUp}, {3, DirectionUp}, {2, DirectionDown},
		{4, DirectionUp}, {1, DirectionDown}, {0, DirectionUp}, {5, DirectionDown},
	}
	for _, mv := range moves {
		if _, err := m.Reorder(context.Background(), ps[mv.idx].ID, mv.d); err != nil {
			t.Fatalf("reorder: %v", err)
		}
		assertDistinctPerPartition(t, m)
	}
}

func TestReorderUpAtTopIsNoop(t *testing.T) {
	m := newMemStore()
	ps := seedProducts(t, m, 3)
	before := orders(t, m)

	res, err := m.Reorder(context.Background(), ps[0].ID, DirectionUp)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if res.Moved {
		t.Fatalf("expected no move for the first product")
	}
	after := orders(t, m)
	for id, o := range before {
		if after[id] != o {
			t.Fatalf("order of %s changed: %d -> %d", id, o, after[id])
		}
	}
}

func TestReorderUpThenDownRestores(t *testing.T) {
	m := newMemStore()
	ps := seedProducts(t, m, 4)
	before := orders(t, m)

	if _, err := m.Reorder(context.Background(), ps[2].ID, DirectionUp); err != nil {
		t.Fatalf("up: %v", err)
	}
	mid := orders(t, m)
	if mid[ps[2].ID] != before[ps[1].ID] || mid[ps[1].ID] != before[ps[2].ID] {
		t.Fatalf("up did not swap with the previous product: %v", mid)
	}
	if _, err := m.Reorder(context.Background(), ps[2].ID, DirectionDown); err != nil {
		t.Fatalf("down: %v", err)
	}
	after := orders(t, m)
	for id, o := range before {
		if after[id] != o {
			t.Fatalf("order of %s not restored: %d -> %d", id, o, after[id])
		}
	}
}

func TestReorderStaysInPartition(t *testing.T) {
	m := newMemStore()
	ps := seedProducts(t, m, 3)
	sold := true
	if _, err := m.SetSold(context.Background(), ps[1].ID, &sold); err != nil {
		t.Fatalf("set sold: %v", err)
	}
	before := orders(t, m)

	// ps[2] is unsold; its nearest unsold neighbour above is ps[0], not the sold ps[1]
	res, err := m.Reorder(context.Background(), ps[2].ID, DirectionUp)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if !res.Moved || res.SiblingID != ps[0].ID {
		t.Fatalf("sibling = %q, want %q", res.SiblingID, ps[0].ID)
	}
	after := orders(t, m)
	if after[ps[1].ID] != before[ps[1].ID] {
		t.Fatalf("sold product order changed: %d -> %d", before[ps[1].ID], after[ps[1].ID])
	}

	// the only sold product has no sibling either way
	for _, d := range []Direction{DirectionUp, DirectionDown} {
		res, err := m.Reorder(context.Background(), ps[1].ID, d)
		if err != nil {
			t.Fatalf("reorder sold: %v", err)
		}
		if res.Moved {
			t.Fatalf("sold product moved %s across partitions", d)
		}
	}
}

func TestReorderUnknownProduct(t *testing.T) {
	m := newMemStore()
	if _, err := m.Reorder(context.Background(), "missing", DirectionUp); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := parseDirection(" Up "); err != nil || d != DirectionUp {
		t.Fatalf("parse up: %v %v", d, err)
	}
	if _, err := parseDirection(""); err == nil {
		t.Fatalf("expected error for empty direction")
	}
	if _, err := parseDirection("sideways"); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}

func TestSetSoldFlipsWithoutValue(t *testing.T) {
	m := newMemStore()
	ps := seedProducts(t, m, 1)
	p, err := m.SetSold(context.Background(), ps[0].ID, nil)
	if err != nil || !p.IsSold {
		t.Fatalf("first flip: sold=%t err=%v", p.IsSold, err)
	}
	p, err = m.SetSold(context.Background(), ps[0].ID, nil)
	if err != nil || p.IsSold {
		t.Fatalf("second flip: sold=%t err=%v", p.IsSold, err)
	}
}

func TestMemSettingsMerge(t *testing.T) {
	m := newMemStore()
	st, _ := m.GetSettings(context.Background())
	if st.LogoText != "STUDIO" || st.DetailTitleWeight != "extrabold" || st.HasLogo() {
		t.Fatalf("unexpected defaults: %+v", st)
	}
	text := "ATELIER"
	if _, err := m.UpdateSettings(context.Background(), SettingsPatch{LogoText: &text}); err != nil {
		t.Fatalf("update text: %v", err)
	}
	st, err := m.UpdateSettings(context.Background(), SettingsPatch{Typography: map[string]string{"cardPriceSize": "20px"}})
	if err != nil {
		t.Fatalf("update typography: %v", err)
	}
	if st.LogoText != "ATELIER" || st.CardPriceSize != "20px" || st.CardPriceWeight != "bold" {
		t.Fatalf("merge lost fields: %+v", st)
	}
}

func TestMemSettingsEmptyLogoText(t *testing.T) {
	m := newMemStore()
	empty := ""
	st, err := m.UpdateSettings(context.Background(), SettingsPatch{LogoText: &empty})
	if err != nil || st.LogoText != "STUDIO" {
		t.Fatalf("new record: text=%q err=%v, want STUDIO", st.LogoText, err)
	}
	if _, err := m.UpdateSettings(context.Background(), SettingsPatch{LogoText: &empty}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if st, _ := m.GetSettings(context.Background()); st.LogoText != "" {
		t.Fatalf("text = %q, want the stored empty text", st.LogoText)
	}
}

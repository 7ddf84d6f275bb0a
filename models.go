package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// prices go out as JSON numbers, the storefront does arithmetic on them
	decimal.MarshalJSONWithoutQuotes = true
}

// Product represents an artwork in the gallery.
type Product struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Size          string          `json:"size"`
	Technique     *string         `json:"technique"`
	Price         decimal.Decimal `json:"price"`
	ImageURL      string          `json:"imageUrl"`
	ImagePublicID string          `json:"imagePublicId,omitempty"`
	Order         int             `json:"order"`
	IsSold        bool            `json:"isSold"`
	IsPublished   bool            `json:"isPublished"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// NewProduct carries the validated fields of a create request.
type NewProduct struct {
	Title         string
	Description   string
	Size          string
	Technique     *string
	Price         decimal.Decimal
	ImageURL      string
	ImagePublicID string
	IsSold        bool
	IsPublished   bool
}

// ProductPatch lists the fields an update changes. Nil means untouched.
type ProductPatch struct {
	Title          *string
	Description    *string
	Size           *string
	Technique      *string
	ClearTechnique bool
	Price          *decimal.Decimal
	ImageURL       *string
	ImagePublicID  *string
	IsPublished    *bool
}

func (patch ProductPatch) empty() bool {
	return patch.Title == nil && patch.Description == nil && patch.Size == nil && patch.Technique == nil &&
		!patch.ClearTechnique && patch.Price == nil && patch.ImageURL == nil && patch.ImagePublicID == nil &&
		patch.IsPublished == nil
}

// apply copies the patch onto p. Used by the in-memory store.
func (patch ProductPatch) apply(p *Product) {
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Size != nil {
		p.Size = *patch.Size
	}
	if patch.ClearTechnique {
		p.Technique = nil
	} else if patch.Technique != nil {
		t := *patch.Technique
		p.Technique = &t
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	if patch.ImagePublicID != nil {
		p.ImagePublicID = *patch.ImagePublicID
	}
	if patch.IsPublished != nil {
		p.IsPublished = *patch.IsPublished
	}
}

// ProductFilter narrows a product listing.
type ProductFilter struct {
	PublishedOnly bool
	Sold          *bool
}

func (f ProductFilter) match(p Product) bool {
	if f.PublishedOnly && !p.IsPublished {
		return false
	}
	if f.Sold != nil && p.IsSold != *f.Sold {
		return false
	}
	return true
}

func (f ProductFilter) key() string {
	k := "all"
	if f.PublishedOnly {
		k = "published"
	}
	if f.Sold != nil {
		k += "|sold=" + strconv.FormatBool(*f.Sold)
	}
	return k
}

// priceText accepts a price sent either as a JSON string or a JSON number.
type priceText string

func (p *priceText) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	*p = priceText(strings.TrimSpace(s))
	return nil
}

// parsePrice parses the textual price form used by the admin forms.
func parsePrice(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, &ValidationError{Field: "price", Msg: "price must be a number"}
	}
	if d.IsNegative() {
		return decimal.Decimal{}, &ValidationError{Field: "price", Msg: "price must not be negative"}
	}
	return d.Round(2), nil
}

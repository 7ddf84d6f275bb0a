package main

import "strings"

// Direction moves a product one position within its sold/unsold partition.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

func parseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirectionUp, DirectionDown:
		return d, nil
	case "":
		return "", invalid("direction", "ID and direction are required")
	default:
		return "", invalid("direction", "direction must be up or down")
	}
}

// ReorderResult describes the outcome of a reorder. Moved is false when the
// product is already first (up) or last (down) in its partition.
type ReorderResult struct {
	Moved     bool
	ProductID string
	SiblingID string
	// order values after the swap
	ProductOrder int
	SiblingOrder int
}

// findSibling returns the nearest product in cur's partition in direction d.
// Partitions are defined by IsSold, so unsold and sold items never trade places.
func findSibling(all []Product, cur Product, d Direction) (Product, bool) {
	var best Product
	found := false
	for _, p := range all {
		if p.ID == cur.ID || p.IsSold != cur.IsSold {
			continue
		}
		switch d {
		case DirectionUp:
			if p.Order < cur.Order && (!found || p.Order > best.Order) {
				best, found = p, true
			}
		case DirectionDown:
			if p.Order > cur.Order && (!found || p.Order < best.Order) {
				best, found = p, true
			}
		}
	}
	return best, found
}

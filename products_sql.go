package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const productColumns = `id, title, description, size, technique, price, image_url, image_public_id, sort_order, is_sold, is_published, created_at, updated_at`

const (
	selectProductSQL    = `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	lockProductSQL      = selectProductSQL + ` FOR UPDATE`
	lockLastOrderSQL    = `SELECT sort_order FROM products ORDER BY sort_order DESC LIMIT 1 FOR UPDATE`
	insertProductSQL    = `INSERT INTO products (` + productColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	deleteProductSQL    = `DELETE FROM products WHERE id = ?`
	setSoldSQL          = `UPDATE products SET is_sold = ?, updated_at = ? WHERE id = ?`
	setOrderSQL         = `UPDATE products SET sort_order = ?, updated_at = ? WHERE id = ?`
	siblingAboveSQL     = `SELECT id, sort_order FROM products WHERE is_sold = ? AND sort_order < ? ORDER BY sort_order DESC LIMIT 1 FOR UPDATE`
	siblingBelowSQL     = `SELECT id, sort_order FROM products WHERE is_sold = ? AND sort_order > ? ORDER BY sort_order ASC LIMIT 1 FOR UPDATE`
	listProductsOrderBy = ` ORDER BY is_sold ASC, sort_order ASC`
)

// sqlProductStore is the MySQL/Postgres product store.
type sqlProductStore struct {
	db    *sql.DB
	d     dialect
	now   func() time.Time
	newID func() string
}

func newSQLProductStore(db *sql.DB, d dialect) *sqlProductStore {
	return &sqlProductStore{db: db, d: d, now: time.Now, newID: uuid.NewString}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p                       Product
		desc, size, image, tech sql.NullString
		publicID                sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Title, &desc, &size, &tech, &p.Price, &image, &publicID,
		&p.Order, &p.IsSold, &p.IsPublished, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	p.Description = desc.String
	p.Size = size.String
	p.ImageURL = image.String
	p.ImagePublicID = publicID.String
	if tech.Valid {
		t := tech.String
		p.Technique = &t
	}
	return p, nil
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *sqlProductStore) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	where := []string{}
	args := []any{}
	if f.PublishedOnly {
		where = append(where, "is_published = ?")
		args = append(args, true)
	}
	if f.Sold != nil {
		where = append(where, "is_sold = ?")
		args = append(args, *f.Sold)
	}
	q := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += listProductsOrderBy

	rows, err := s.db.QueryContext(ctx, s.d.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (s *sqlProductStore) GetProduct(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, s.d.rebind(selectProductSQL), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// lock reads a product row FOR UPDATE inside tx.
func (s *sqlProductStore) lock(ctx context.Context, tx *sql.Tx, id string) (Product, error) {
	p, err := scanProduct(tx.QueryRowContext(ctx, s.d.rebind(lockProductSQL), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("lock product %s: %w", id, err)
	}
	return p, nil
}

// CreateProduct appends the product after the current highest order.
func (s *sqlProductStore) CreateProduct(ctx context.Context, np NewProduct) (Product, error) {
	now := s.now().UTC().Truncate(time.Second)
	p := Product{
		ID:            s.newID(),
		Title:         np.Title,
		Description:   np.Description,
		Size:          np.Size,
		Technique:     np.Technique,
		Price:         np.Price,
		ImageURL:      np.ImageURL,
		ImagePublicID: np.ImagePublicID,
		IsSold:        np.IsSold,
		IsPublished:   np.IsPublished,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var last int
		err := tx.QueryRowContext(ctx, lockLastOrderSQL).Scan(&last)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			p.Order = 0
		case err != nil:
			return fmt.Errorf("last order: %w", err)
		default:
			p.Order = last + 1
		}
		_, err = tx.ExecContext(ctx, s.d.rebind(insertProductSQL),
			p.ID, p.Title, p.Description, p.Size, techniqueValue(p.Technique), p.Price, p.ImageURL,
			sqlNullString(p.ImagePublicID), p.Order, p.IsSold, p.IsPublished, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

// UpdateProduct applies only the fields set in patch.
func (s *sqlProductStore) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	setCols := []string{}
	args := []any{}
	if patch.Title != nil {
		setCols = append(setCols, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		setCols = append(setCols, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Size != nil {
		setCols = append(setCols, "size = ?")
		args = append(args, *patch.Size)
	}
	if patch.ClearTechnique {
		setCols = append(setCols, "technique = ?")
		args = append(args, nil)
	} else if patch.Technique != nil {
		setCols = append(setCols, "technique = ?")
		args = append(args, *patch.Technique)
	}
	if patch.Price != nil {
		setCols = append(setCols, "price = ?")
		args = append(args, *patch.Price)
	}
	if patch.ImageURL != nil {
		setCols = append(setCols, "image_url = ?")
		args = append(args, *patch.ImageURL)
	}
	if patch.ImagePublicID != nil {
		setCols = append(setCols, "image_public_id = ?")
		args = append(args, sqlNullString(*patch.ImagePublicID))
	}
	if patch.IsPublished != nil {
		setCols = append(setCols, "is_published = ?")
		args = append(args, *patch.IsPublished)
	}

	var out Product
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		cur, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if len(setCols) == 0 {
			out = cur
			return nil
		}
		now := s.now().UTC().Truncate(time.Second)
		q := "UPDATE products SET " + strings.Join(setCols, ", ") + ", updated_at = ? WHERE id = ?"
		if _, err := tx.ExecContext(ctx, s.d.rebind(q), append(args, now, id)...); err != nil {
			return fmt.Errorf("update product %s: %w", id, err)
		}
		patch.apply(&cur)
		cur.UpdatedAt = now
		out = cur
		return nil
	})
	return out, err
}

// SetSold sets isSold to *sold, or flips it when sold is nil.
func (s *sqlProductStore) SetSold(ctx context.Context, id string, sold *bool) (Product, error) {
	var out Product
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		cur, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		next := !cur.IsSold
		if sold != nil {
			next = *sold
		}
		now := s.now().UTC().Truncate(time.Second)
		if _, err := tx.ExecContext(ctx, s.d.rebind(setSoldSQL), next, now, id); err != nil {
			return fmt.Errorf("set sold %s: %w", id, err)
		}
		cur.IsSold, cur.UpdatedAt = next, now
		out = cur
		return nil
	})
	return out, err
}

// DeleteProduct removes the record and returns what was deleted so the
// caller can clean up its image.
func (s *sqlProductStore) DeleteProduct(ctx context.Context, id string) (Product, error) {
	var out Product
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		cur, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.d.rebind(deleteProductSQL), id); err != nil {
			return fmt.Errorf("delete product %s: %w", id, err)
		}
		out = cur
		return nil
	})
	return out, err
}

// Reorder swaps the product's order with its neighbour in the same partition.
// Both rows are locked and both updates commit together or not at all.
func (s *sqlProductStore) Reorder(ctx context.Context, id string, d Direction) (ReorderResult, error) {
	res := ReorderResult{ProductID: id}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		cur, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		q := siblingAboveSQL
		if d == DirectionDown {
			q = siblingBelowSQL
		}
		var siblingID string
		var siblingOrder int
		err = tx.QueryRowContext(ctx, s.d.rebind(q), cur.IsSold, cur.Order).Scan(&siblingID, &siblingOrder)
		if errors.Is(err, sql.ErrNoRows) {
			res.ProductOrder = cur.Order
			return nil
		}
		if err != nil {
			return fmt.Errorf("find sibling: %w", err)
		}

		now := s.now().UTC().Truncate(time.Second)
		if _, err := tx.ExecContext(ctx, s.d.rebind(setOrderSQL), siblingOrder, now, cur.ID); err != nil {
			return fmt.Errorf("swap order %s: %w", cur.ID, err)
		}
		if _, err := tx.ExecContext(ctx, s.d.rebind(setOrderSQL), cur.Order, now, siblingID); err != nil {
			return fmt.Errorf("swap order %s: %w", siblingID, err)
		}
		res = ReorderResult{
			Moved:        true,
			ProductID:    cur.ID,
			SiblingID:    siblingID,
			ProductOrder: siblingOrder,
			SiblingOrder: cur.Order,
		}
		return nil
	})
	if err != nil {
		return ReorderResult{}, err
	}
	return res, nil
}

func techniqueValue(t *string) any {
	if t == nil {
		return nil
	}
	return *t
}

func sqlNullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

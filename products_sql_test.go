package main

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

func newMockProductStore(t *testing.T, d dialect) (*sqlProductStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := newSQLProductStore(db, d)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	s.newID = func() string { return "new-id" }
	return s, mock
}

func productRows(ps ...Product) *sqlmock.Rows {
	rows := sqlmock.NewRows(strings.Split(productColumns, ", "))
	for _, p := range ps {
		rows.AddRow(p.ID, p.Title, p.Description, p.Size, nil, p.Price.StringFixed(2), p.ImageURL, nil,
			p.Order, p.IsSold, p.IsPublished, p.CreatedAt, p.UpdatedAt)
	}
	return rows
}

func mockProduct(id string, order int) Product {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return Product{ID: id, Title: "Work " + id, Price: decimal.NewFromInt(100), Order: order,
		IsPublished: true, CreatedAt: ts, UpdatedAt: ts}
}

func quoted(d dialect, sql string) string { return regexp.QuoteMeta(d.rebind(sql)) }

func TestSQLReorderSwapsInOneTransaction(t *testing.T) {
	s, mock := newMockProductStore(t, dialectMySQL)
	mock.ExpectBegin()
	mock.ExpectQuery(quoted(s.d, lockProductSQL)).WithArgs("p2").WillReturnRows(productRows(mockProduct("p2", 4)))
	mock.ExpectQuery(quoted(s.d, siblingAboveSQL)).WithArgs(false, 4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sort_order"}).AddRow("p1", 2))
	mock.ExpectExec(quoted(s.d, setOrderSQL)).WithArgs(2, sqlmock.AnyArg(), "p2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quoted(s.d, setOrderSQL)).WithArgs(4, sqlmock.AnyArg(), "p1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := s.Reorder(context.Background(), "p2", DirectionUp)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if !res.Moved || res.SiblingID != "p1" || res.ProductOrder != 2 || res.SiblingOrder != 4 {
		t.Fatalf("result = %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLReorderAtLimitWritesNothing(t *testing.T) {
	s, mock := newMockProductStore(t, dialectMySQL)
	mock.ExpectBegin()
	mock.ExpectQuery(quoted(s.d, lockProductSQL)).WithArgs("p1").WillReturnRows(productRows(mockProduct("p1", 7)))
	mock.ExpectQuery(quoted(s.d, siblingBelowSQL)).WithArgs(false, 7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sort_order"}))
	mock.ExpectCommit()

	res, err := s.Reorder(context.Background(), "p1", DirectionDown)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if res.Moved {
		t.Fatalf("expected no move: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLReorderRollsBackOnFailure(t *testing.T) {
	s, mock := newMockProductStore(t, dialectPostgres)
	mock.ExpectBegin()
	mock.ExpectQuery(quoted(s.d, lockProductSQL)).WithArgs("p2").WillReturnRows(productRows(mockProduct("p2", 1)))
	mock.ExpectQuery(quoted(s.d, siblingBelowSQL)).WithArgs(false, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sort_order"}).AddRow("p3", 3))
	mock.ExpectExec(quoted(s.d, setOrderSQL)).WithArgs(3, sqlmock.AnyArg(), "p2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quoted(s.d, setOrderSQL)).WithArgs(1, sqlmock.AnyArg(), "p3").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	if _, err := s.Reorder(context.Background(), "p2", DirectionDown); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLReorderUnknownProduct(t *testing.T) {
	s, mock := newMockProductStore(t, dialectMySQL)
	mock.ExpectBegin()
	mock.ExpectQuery(quoted(s.d, lockProductSQL)).WithArgs("nope").WillReturnRows(productRows())
	mock.ExpectRollback()

	if _, err := s.Reorder(context.Background(), "nope", DirectionUp); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLCreateAppendsAfterLastOrder(t *testing.T) {
	s, mock := newMockProductStore(t, dialectMySQL)
	mock.ExpectBegin()
	mock.ExpectQuery(quoted(s.d, lockLastOrderSQL)).WillReturnRows(sqlmock.NewRows([]string{"sort_order"}).AddRow(9))
	mock.ExpectExec(quoted(s.d, insertProductSQL)).
		WithArgs("new-id", "Bloom", "", "", nil, sqlmock.AnyArg(), "", nil, 10, false, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := s.CreateProduct(context.Background(), NewProduct{Title: "Bloom", Price: decimal.NewFromInt(50), IsPublished: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Order != 10 || p.ID != "new-id" {
		t.Fatalf("product = %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLCreateOnEmptyTable(t *testing.T) {
	s, mock := newMockProductStore(t, dialectMySQL)
	mock.ExpectBegin()
	mock.ExpectQuery(quoted(s.d, lockLastOrderSQL)).WillReturnRows(sqlmock.NewRows([]string{"sort_order"}))
	mock.ExpectExec(quoted(s.d, insertProductSQL)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := s.CreateProduct(context.Background(), NewProduct{Title: "First", Price: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Order != 0 {
		t.Fatalf("order = %d, want 0", p.Order)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLUpdateOnlyTouchesPatchedColumns(t *testing.T) {
	s, mock := newMockProductStore(t, dialectPostgres)
	price := decimal.NewFromInt(200)
	mock.ExpectBegin()
	mock.ExpectQuery(quoted(s.d, lockProductSQL)).WithArgs("p1").WillReturnRows(productRows(mockProduct("p1", 0)))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET price = $1, updated_at = $2 WHERE id = $3`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := s.UpdateProduct(context.Background(), "p1", ProductPatch{Price: &price})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !p.Price.Equal(price) || p.Title != "Work p1" {
		t.Fatalf("product = %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLGetMapsNoRows(t *testing.T) {
	s, mock := newMockProductStore(t, dialectMySQL)
	mock.ExpectQuery(quoted(s.d, selectProductSQL)).WithArgs("x").WillReturnRows(productRows())
	if _, err := s.GetProduct(context.Background(), "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRebind(t *testing.T) {
	in := "UPDATE t SET a = ?, b = ? WHERE id = ?"
	if got := dialectMySQL.rebind(in); got != in {
		t.Fatalf("mysql rebind changed query: %s", got)
	}
	if got, want := dialectPostgres.rebind(in), "UPDATE t SET a = $1, b = $2 WHERE id = $3"; got != want {
		t.Fatalf("postgres rebind = %s, want %s", got, want)
	}
}

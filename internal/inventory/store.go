package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mobistock/mobistock/internal/platform/db"
	"github.com/mobistock/mobistock/internal/shared"
)

// Store persists inventory units in PostgreSQL. It is bound to a
// Querier so the same queries run standalone against the pool or inside
// a caller's transaction.
type Store struct {
	q db.Querier
}

// NewStore constructs a Store bound to the given querier.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// WithQuerier returns a Store running against q, typically a pgx.Tx.
func (s *Store) WithQuerier(q db.Querier) *Store {
	return &Store{q: q}
}

const unitColumns = `id, imei, marque, modele, stockage, type, type_carton, status, prix_achat, prix_vente, quantite, fournisseur_id, date_ajout`

// FindByAttributes looks a unit up by the full sale-time tuple. The row
// is locked so two concurrent sales of the same unit serialize: the
// second observes the sold status instead of both flipping it.
func (s *Store) FindByAttributes(ctx context.Context, lookup Lookup) (*Unit, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM products
		WHERE imei = $1 AND marque = $2 AND modele = $3
		AND (stockage = $4 OR (stockage IS NULL AND $4 IS NULL))
		AND (type = $5 OR (type IS NULL AND $5 IS NULL))
		AND (type_carton = $6 OR (type_carton IS NULL AND $6 IS NULL))
		FOR UPDATE`, unitColumns)
	row := s.q.QueryRow(ctx, query, lookup.IMEI, lookup.Brand, lookup.Model, lookup.Storage, lookup.Kind, lookup.CartonType)
	return scanUnit(row, lookup.IMEI)
}

// GetByID fetches a unit by primary key.
func (s *Store) GetByID(ctx context.Context, id int64) (*Unit, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, unitColumns)
	return scanUnit(s.q.QueryRow(ctx, query, id), "")
}

// UpdateStatus flips the availability state of a unit, keyed by id and
// IMEI the way the sale engine addresses units.
func (s *Store) UpdateStatus(ctx context.Context, id int64, imei string, status UnitStatus) error {
	tag, err := s.q.Exec(ctx, `UPDATE products SET status = $1 WHERE id = $2 AND imei = $3`, status, id, imei)
	if err != nil {
		return fmt.Errorf("inventory: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory: unit %d (imei %s): %w", id, imei, shared.ErrNotFound)
	}
	return nil
}

// Restock reactivates a unit and increments its on-hand quantity, used
// when a customer hands a purchased unit back.
func (s *Store) Restock(ctx context.Context, id int64, imei string) error {
	tag, err := s.q.Exec(ctx, `UPDATE products SET status = $1, quantite = quantite + 1 WHERE id = $2 AND imei = $3`, UnitStatusActive, id, imei)
	if err != nil {
		return fmt.Errorf("inventory: restock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory: unit %d (imei %s): %w", id, imei, shared.ErrNotFound)
	}
	return nil
}

// List returns units, optionally filtered by status.
func (s *Store) List(ctx context.Context, status *UnitStatus) ([]Unit, error) {
	query := fmt.Sprintf(`SELECT %s FROM products`, unitColumns)
	var args []any
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY date_ajout DESC`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list: %w", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.IMEI, &u.Brand, &u.Model, &u.Storage, &u.Kind, &u.CartonType, &u.Status, &u.PurchasePrice, &u.SalePrice, &u.Quantity, &u.SupplierID, &u.AddedAt); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func scanUnit(row pgx.Row, imei string) (*Unit, error) {
	var u Unit
	err := row.Scan(&u.ID, &u.IMEI, &u.Brand, &u.Model, &u.Storage, &u.Kind, &u.CartonType, &u.Status, &u.PurchasePrice, &u.SalePrice, &u.Quantity, &u.SupplierID, &u.AddedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if imei != "" {
				return nil, fmt.Errorf("inventory: unit imei %q: %w", imei, shared.ErrNotFound)
			}
			return nil, fmt.Errorf("inventory: unit: %w", shared.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mobistock/mobistock/internal/platform/db"
	"github.com/mobistock/mobistock/internal/shared"
)

// Store persists clients in PostgreSQL.
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

// GetByName resolves a client by exact name.
func (s *Store) GetByName(ctx context.Context, name string) (*Client, error) {
	var c Client
	err := s.q.QueryRow(ctx, `SELECT id, nom, telephone, date_creation FROM clients WHERE nom = $1`, name).
		Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("clients: %q: %w", name, shared.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

// Insert creates a client and returns its id.
func (s *Store) Insert(ctx context.Context, name string, phone *string) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO clients (nom, telephone) VALUES ($1, $2) RETURNING id`, name, phone).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("clients: insert %q: %w", name, err)
	}
	return id, nil
}

// UpdatePhone records a new phone number for a client.
func (s *Store) UpdatePhone(ctx context.Context, id int64, phone string) error {
	_, err := s.q.Exec(ctx, `UPDATE clients SET telephone = $1 WHERE id = $2`, phone, id)
	if err != nil {
		return fmt.Errorf("clients: update phone: %w", err)
	}
	return nil
}

// List returns all clients ordered by name.
func (s *Store) List(ctx context.Context) ([]Client, error) {
	rows, err := s.q.Query(ctx, `SELECT id, nom, telephone, date_creation FROM clients ORDER BY nom`)
	if err != nil {
		return nil, fmt.Errorf("clients: list: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

package invoices

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mobistock/mobistock/internal/platform/db"
	"github.com/mobistock/mobistock/internal/shared"
)

// Store persists invoice mirrors in PostgreSQL.
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

// SyncForSale projects the sale's recomputed figures onto its mirror.
// A sale without a mirror row is not an error: zero rows updated means
// no invoice was ever created for it.
func (s *Store) SyncForSale(ctx context.Context, sync Sync) error {
	_, err := s.q.Exec(ctx, `
		UPDATE factures
		SET statut_facture = $1, montant_original_facture = $2, montant_actuel_du = $3, montant_paye_facture = $4
		WHERE vente_id = $5`,
		sync.Status, sync.OriginalAmount, sync.AmountDue, sync.AmountPaid, sync.SaleID)
	if err != nil {
		return fmt.Errorf("invoices: sync sale %d: %w", sync.SaleID, err)
	}
	return nil
}

// MarkCancelled forces the mirror's status to annulee.
func (s *Store) MarkCancelled(ctx context.Context, saleID int64) error {
	_, err := s.q.Exec(ctx, `UPDATE factures SET statut_facture = $1 WHERE vente_id = $2`, "annulee", saleID)
	if err != nil {
		return fmt.Errorf("invoices: cancel sale %d: %w", saleID, err)
	}
	return nil
}

// Insert creates the mirror row. The amount due derives from the
// original amount minus what was already collected.
func (s *Store) Insert(ctx context.Context, req CreateRequest) (*Invoice, error) {
	var inv Invoice
	err := s.q.QueryRow(ctx, `
		INSERT INTO factures (vente_id, statut_facture, montant_original_facture, montant_actuel_du, montant_paye_facture, date_creation)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, vente_id, statut_facture, montant_original_facture, montant_actuel_du, montant_paye_facture, date_creation`,
		req.SaleID, req.Status, req.OriginalAmount, req.OriginalAmount-req.AmountPaid, req.AmountPaid).
		Scan(&inv.ID, &inv.SaleID, &inv.Status, &inv.OriginalAmount, &inv.AmountDue, &inv.AmountPaid, &inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invoices: insert for sale %d: %w", req.SaleID, err)
	}
	return &inv, nil
}

// GetBySaleID fetches the mirror of one sale.
func (s *Store) GetBySaleID(ctx context.Context, saleID int64) (*Invoice, error) {
	var inv Invoice
	err := s.q.QueryRow(ctx, `
		SELECT id, vente_id, statut_facture, montant_original_facture, montant_actuel_du, montant_paye_facture, date_creation
		FROM factures WHERE vente_id = $1`, saleID).
		Scan(&inv.ID, &inv.SaleID, &inv.Status, &inv.OriginalAmount, &inv.AmountDue, &inv.AmountPaid, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoices: sale %d: %w", saleID, shared.ErrNotFound)
		}
		return nil, err
	}
	return &inv, nil
}

// List returns all mirrors, newest first.
func (s *Store) List(ctx context.Context) ([]Invoice, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, vente_id, statut_facture, montant_original_facture, montant_actuel_du, montant_paye_facture, date_creation
		FROM factures ORDER BY date_creation DESC`)
	if err != nil {
		return nil, fmt.Errorf("invoices: list: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.SaleID, &inv.Status, &inv.OriginalAmount, &inv.AmountDue, &inv.AmountPaid, &inv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

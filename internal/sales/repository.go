package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mobistock/mobistock/internal/clients"
	"github.com/mobistock/mobistock/internal/inventory"
	"github.com/mobistock/mobistock/internal/invoices"
	"github.com/mobistock/mobistock/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the engine.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations composed by the
// service. Every engine mutation runs entirely through one of these
// transactions; a failure at any step rolls the whole unit back.
type TxRepository interface {
	// Client directory
	GetClientByName(ctx context.Context, name string) (*clients.Client, error)
	CreateClient(ctx context.Context, name string, phone *string) (int64, error)
	UpdateClientPhone(ctx context.Context, id int64, phone string) error

	// Inventory unit ledger
	FindUnit(ctx context.Context, lookup inventory.Lookup) (*inventory.Unit, error)
	UpdateUnitStatus(ctx context.Context, id int64, imei string, status inventory.UnitStatus) error
	RestockUnit(ctx context.Context, id int64, imei string) error

	// Sale aggregate
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertSaleItem(ctx context.Context, item SaleItem) (int64, error)
	GetSaleForUpdate(ctx context.Context, saleID int64) (*Sale, error)
	GetSaleItem(ctx context.Context, saleID, itemID int64) (*SaleItem, error)
	MarkItemStatus(ctx context.Context, saleID, itemID int64, status ItemStatus, reason string) error
	SumActiveItems(ctx context.Context, saleID int64) (float64, error)
	CountItems(ctx context.Context, saleID int64) (total, inactive int, err error)
	UpdateSaleTotals(ctx context.Context, saleID int64, totalAmount float64, status PaymentStatus) error
	UpdateSalePayment(ctx context.Context, saleID int64, amountPaid, totalAmount float64, status PaymentStatus) error
	ForceCancelSale(ctx context.Context, saleID int64) error

	// Returns audit trail
	InsertReturn(ctx context.Context, ret Return) error

	// Invoice mirror
	SyncInvoice(ctx context.Context, sync invoices.Sync) error
	CancelInvoice(ctx context.Context, saleID int64) error
}

type txRepo struct {
	tx        pgx.Tx
	clients   *clients.Store
	inventory *inventory.Store
	invoices  *invoices.Store
}

// WithTx wraps the callback in a transaction with rollback on every
// error path and commit only on success.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("sales: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	wrapper := &txRepo{
		tx:        tx,
		clients:   clients.NewStore(tx),
		inventory: inventory.NewStore(tx),
		invoices:  invoices.NewStore(tx),
	}
	if err := fn(ctx, wrapper); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("sales: commit tx: %w", err)
	}
	return nil
}

// ============================================================================
// TX OPERATIONS
// ============================================================================

func (t *txRepo) GetClientByName(ctx context.Context, name string) (*clients.Client, error) {
	return t.clients.GetByName(ctx, name)
}

func (t *txRepo) CreateClient(ctx context.Context, name string, phone *string) (int64, error) {
	return t.clients.Insert(ctx, name, phone)
}

func (t *txRepo) UpdateClientPhone(ctx context.Context, id int64, phone string) error {
	return t.clients.UpdatePhone(ctx, id, phone)
}

func (t *txRepo) FindUnit(ctx context.Context, lookup inventory.Lookup) (*inventory.Unit, error) {
	return t.inventory.FindByAttributes(ctx, lookup)
}

func (t *txRepo) UpdateUnitStatus(ctx context.Context, id int64, imei string, status inventory.UnitStatus) error {
	return t.inventory.UpdateStatus(ctx, id, imei, status)
}

func (t *txRepo) RestockUnit(ctx context.Context, id int64, imei string) error {
	return t.inventory.Restock(ctx, id, imei)
}

func (t *txRepo) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO ventes (client_id, date_vente, montant_total, montant_paye, statut_paiement, is_facture_speciale)
		VALUES ($1, NOW(), $2, $3, $4, $5)
		RETURNING id`,
		sale.ClientID, sale.TotalAmount, sale.AmountPaid, sale.PaymentStatus, sale.IsSpecialInvoice).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("sales: insert sale: %w", err)
	}
	return id, nil
}

func (t *txRepo) InsertSaleItem(ctx context.Context, item SaleItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO vente_items (vente_id, produit_id, imei, quantite_vendue, prix_unitaire_vente, prix_unitaire_achat,
			marque, modele, type_carton, stockage, type, statut_vente, is_special_sale_item, cancellation_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		item.SaleID, item.UnitID, item.IMEI, item.QuantitySold, item.UnitSalePrice, item.UnitPurchasePrice,
		item.Brand, item.Model, item.CartonType, item.Storage, item.Kind, item.Status, item.IsSpecialSaleItem, item.CancellationReason).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("sales: insert item imei %q: %w", item.IMEI, err)
	}
	return id, nil
}

// GetSaleForUpdate locks the sale row, serializing concurrent
// corrections and payment updates on the same sale.
func (t *txRepo) GetSaleForUpdate(ctx context.Context, saleID int64) (*Sale, error) {
	var s Sale
	err := t.tx.QueryRow(ctx, `
		SELECT id, client_id, date_vente, montant_total, montant_paye, statut_paiement, is_facture_speciale
		FROM ventes WHERE id = $1
		FOR UPDATE`, saleID).
		Scan(&s.ID, &s.ClientID, &s.Date, &s.TotalAmount, &s.AmountPaid, &s.PaymentStatus, &s.IsSpecialInvoice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sales: sale %d: %w", saleID, shared.ErrNotFound)
		}
		return nil, err
	}
	return &s, nil
}

func (t *txRepo) GetSaleItem(ctx context.Context, saleID, itemID int64) (*SaleItem, error) {
	var it SaleItem
	err := t.tx.QueryRow(ctx, `
		SELECT id, vente_id, produit_id, imei, quantite_vendue, prix_unitaire_vente, prix_unitaire_achat,
			marque, modele, stockage, type, type_carton, statut_vente, is_special_sale_item, cancellation_reason, rendu_date
		FROM vente_items WHERE id = $1 AND vente_id = $2`, itemID, saleID).
		Scan(&it.ID, &it.SaleID, &it.UnitID, &it.IMEI, &it.QuantitySold, &it.UnitSalePrice, &it.UnitPurchasePrice,
			&it.Brand, &it.Model, &it.Storage, &it.Kind, &it.CartonType, &it.Status, &it.IsSpecialSaleItem, &it.CancellationReason, &it.RestockedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sales: item %d of sale %d: %w", itemID, saleID, shared.ErrNotFound)
		}
		return nil, err
	}
	return &it, nil
}

// MarkItemStatus transitions a line out of actif. The WHERE clause
// requires the current status to still be actif so a concurrent or
// repeated correction cannot double-apply inventory reversals.
func (t *txRepo) MarkItemStatus(ctx context.Context, saleID, itemID int64, status ItemStatus, reason string) error {
	query := `UPDATE vente_items SET statut_vente = $1, cancellation_reason = $2 WHERE id = $3 AND vente_id = $4 AND statut_vente = $5`
	if status == ItemStatusRestocked {
		query = `UPDATE vente_items SET statut_vente = $1, cancellation_reason = $2, rendu_date = NOW() WHERE id = $3 AND vente_id = $4 AND statut_vente = $5`
	}
	tag, err := t.tx.Exec(ctx, query, status, reason, itemID, saleID, ItemStatusActive)
	if err != nil {
		return fmt.Errorf("sales: mark item %d %s: %w", itemID, status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sales: item %d of sale %d already processed: %w", itemID, saleID, shared.ErrConflict)
	}
	return nil
}

func (t *txRepo) SumActiveItems(ctx context.Context, saleID int64) (float64, error) {
	var total float64
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(prix_unitaire_vente * quantite_vendue), 0)
		FROM vente_items
		WHERE vente_id = $1 AND statut_vente = $2`, saleID, ItemStatusActive).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sales: sum active items of sale %d: %w", saleID, err)
	}
	return total, nil
}

func (t *txRepo) CountItems(ctx context.Context, saleID int64) (int, int, error) {
	var total, inactive int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE statut_vente IN ($2, $3, $4))
		FROM vente_items WHERE vente_id = $1`,
		saleID, ItemStatusCancelled, ItemStatusReturned, ItemStatusRestocked).Scan(&total, &inactive)
	if err != nil {
		return 0, 0, fmt.Errorf("sales: count items of sale %d: %w", saleID, err)
	}
	return total, inactive, nil
}

func (t *txRepo) UpdateSaleTotals(ctx context.Context, saleID int64, totalAmount float64, status PaymentStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE ventes SET montant_total = $1, statut_paiement = $2 WHERE id = $3`, totalAmount, status, saleID)
	if err != nil {
		return fmt.Errorf("sales: update totals of sale %d: %w", saleID, err)
	}
	return nil
}

func (t *txRepo) UpdateSalePayment(ctx context.Context, saleID int64, amountPaid, totalAmount float64, status PaymentStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE ventes SET montant_paye = $1, montant_total = $2, statut_paiement = $3 WHERE id = $4`, amountPaid, totalAmount, status, saleID)
	if err != nil {
		return fmt.Errorf("sales: update payment of sale %d: %w", saleID, err)
	}
	return nil
}

func (t *txRepo) ForceCancelSale(ctx context.Context, saleID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE ventes SET statut_paiement = $1 WHERE id = $2`, PaymentCancelled, saleID)
	if err != nil {
		return fmt.Errorf("sales: cancel sale %d: %w", saleID, err)
	}
	return nil
}

func (t *txRepo) InsertReturn(ctx context.Context, ret Return) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO returns (vente_item_id, vente_id, client_id, marque, modele, stockage, type, type_carton, imei, reason, return_date, status, product_id, is_special_sale_item)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), $11, $12, $13)`,
		ret.ItemID, ret.SaleID, ret.ClientID, ret.Brand, ret.Model, ret.Storage, ret.Kind, ret.CartonType,
		ret.IMEI, ret.Reason, ret.Status, ret.UnitID, ret.IsSpecialSaleItem)
	if err != nil {
		return fmt.Errorf("sales: insert return for item %d: %w", ret.ItemID, err)
	}
	return nil
}

func (t *txRepo) SyncInvoice(ctx context.Context, sync invoices.Sync) error {
	return t.invoices.SyncForSale(ctx, sync)
}

func (t *txRepo) CancelInvoice(ctx context.Context, saleID int64) error {
	return t.invoices.MarkCancelled(ctx, saleID)
}

// ============================================================================
// POOL-SIDE READS
// ============================================================================

const saleSelect = `
	SELECT v.id, v.client_id, v.date_vente, v.montant_total, v.montant_paye, v.statut_paiement, v.is_facture_speciale,
		c.nom, c.telephone
	FROM ventes v
	JOIN clients c ON v.client_id = c.id`

// GetSale loads one sale with its aggregated line items.
func (r *Repository) GetSale(ctx context.Context, saleID int64) (*SaleWithItems, error) {
	var s SaleWithItems
	err := r.pool.QueryRow(ctx, saleSelect+` WHERE v.id = $1`, saleID).
		Scan(&s.ID, &s.ClientID, &s.Date, &s.TotalAmount, &s.AmountPaid, &s.PaymentStatus, &s.IsSpecialInvoice, &s.ClientName, &s.ClientPhone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sales: sale %d: %w", saleID, shared.ErrNotFound)
		}
		return nil, err
	}
	itemsBySale, err := r.loadItems(ctx, []int64{s.ID})
	if err != nil {
		return nil, err
	}
	s.Items = itemsBySale[s.ID]
	if s.Items == nil {
		s.Items = []SaleItem{}
	}
	return &s, nil
}

// ListSales returns all sales with their items, newest first.
func (r *Repository) ListSales(ctx context.Context) ([]SaleWithItems, error) {
	rows, err := r.pool.Query(ctx, saleSelect+` ORDER BY v.date_vente DESC`)
	if err != nil {
		return nil, fmt.Errorf("sales: list: %w", err)
	}
	defer rows.Close()

	var sales []SaleWithItems
	var ids []int64
	for rows.Next() {
		var s SaleWithItems
		if err := rows.Scan(&s.ID, &s.ClientID, &s.Date, &s.TotalAmount, &s.AmountPaid, &s.PaymentStatus, &s.IsSpecialInvoice, &s.ClientName, &s.ClientPhone); err != nil {
			return nil, err
		}
		sales = append(sales, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return []SaleWithItems{}, nil
	}

	itemsBySale, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = itemsBySale[sales[i].ID]
		if sales[i].Items == nil {
			sales[i].Items = []SaleItem{}
		}
	}
	return sales, nil
}

func (r *Repository) loadItems(ctx context.Context, saleIDs []int64) (map[int64][]SaleItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT vi.id, vi.vente_id, vi.produit_id, vi.imei, vi.quantite_vendue, vi.prix_unitaire_vente, vi.prix_unitaire_achat,
			vi.marque, vi.modele, vi.stockage, vi.type, vi.type_carton, vi.statut_vente, vi.is_special_sale_item,
			vi.cancellation_reason, vi.rendu_date, f.nom
		FROM vente_items vi
		LEFT JOIN products p ON vi.produit_id = p.id
		LEFT JOIN fournisseurs f ON p.fournisseur_id = f.id
		WHERE vi.vente_id = ANY($1)
		ORDER BY vi.id`, saleIDs)
	if err != nil {
		return nil, fmt.Errorf("sales: load items: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]SaleItem)
	for rows.Next() {
		var it SaleItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.UnitID, &it.IMEI, &it.QuantitySold, &it.UnitSalePrice, &it.UnitPurchasePrice,
			&it.Brand, &it.Model, &it.Storage, &it.Kind, &it.CartonType, &it.Status, &it.IsSpecialSaleItem,
			&it.CancellationReason, &it.RestockedAt, &it.SupplierName); err != nil {
			return nil, err
		}
		out[it.SaleID] = append(out[it.SaleID], it)
	}
	return out, rows.Err()
}

// ListReturns returns the audit trail, newest first.
func (r *Repository) ListReturns(ctx context.Context) ([]Return, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, vente_item_id, vente_id, client_id, marque, modele, stockage, type, type_carton, imei, reason, return_date, status, product_id, is_special_sale_item
		FROM returns ORDER BY return_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("sales: list returns: %w", err)
	}
	defer rows.Close()

	var out []Return
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.ItemID, &ret.SaleID, &ret.ClientID, &ret.Brand, &ret.Model, &ret.Storage, &ret.Kind, &ret.CartonType,
			&ret.IMEI, &ret.Reason, &ret.ReturnDate, &ret.Status, &ret.UnitID, &ret.IsSpecialSaleItem); err != nil {
			return nil, err
		}
		out = append(out, ret)
	}
	return out, rows.Err()
}

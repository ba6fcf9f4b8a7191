package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mobistock/mobistock/internal/inventory"
	"github.com/mobistock/mobistock/internal/invoices"
	"github.com/mobistock/mobistock/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, saleID int64) (*SaleWithItems, error)
	ListSales(ctx context.Context) ([]SaleWithItems, error)
	ListReturns(ctx context.Context) ([]Return, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort abstracts the domain counters.
type MetricsPort interface {
	SaleCreated()
	CorrectionApplied(kind string)
}

// Invalidator abstracts the list cache flushed after every mutation.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// IdempotencyPort abstracts duplicate-submission guarding.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates the sale engine operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	metrics     MetricsPort
	idempotency IdempotencyPort
	cache       Invalidator
	logger      *slog.Logger
}

// NewService builds Service. Audit, metrics, idempotency and cache are
// optional; a nil port disables that concern.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort, idem IdempotencyPort, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, metrics: metrics, idempotency: idem, cache: cache, logger: logger}
}

// ============================================================================
// SALE CREATION ORCHESTRATOR
// ============================================================================

// CreateSale validates, prices and commits a new sale against live
// inventory in a single transaction. idemKey, when supplied, must be a
// UUID and guards against duplicate submission.
func (s *Service) CreateSale(ctx context.Context, req CreateSaleRequest, idemKey string) (*CreateSaleResult, error) {
	if req.ClientName == "" {
		return nil, fmt.Errorf("sales: client name required: %w", shared.ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("sales: at least one item required: %w", shared.ErrInvalidInput)
	}
	if req.AmountPaid < 0 {
		return nil, fmt.Errorf("sales: amount paid must not be negative: %w", shared.ErrInvalidInput)
	}

	insertedKey := false
	if idemKey != "" {
		if _, err := uuid.Parse(idemKey); err != nil {
			return nil, fmt.Errorf("sales: idempotency key must be a UUID: %w", shared.ErrInvalidInput)
		}
		if s.idempotency != nil {
			if err := s.idempotency.CheckAndInsert(ctx, idemKey, "ventes"); err != nil {
				return nil, err
			}
			insertedKey = true
		}
	}

	var result CreateSaleResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		clientID, err := s.resolveClient(ctx, tx, req.ClientName, req.ClientPhone)
		if err != nil {
			return err
		}

		type pricedLine struct {
			unit  *inventory.Unit
			req   SaleItemRequest
			price float64
		}
		lines := make([]pricedLine, 0, len(req.Items))
		var summed float64
		for _, itemReq := range req.Items {
			unit, err := tx.FindUnit(ctx, inventory.Lookup{
				IMEI:       itemReq.IMEI,
				Brand:      itemReq.Brand,
				Model:      itemReq.Model,
				Storage:    itemReq.Storage,
				Kind:       itemReq.Kind,
				CartonType: itemReq.CartonType,
			})
			if err != nil {
				return err
			}
			if unit.Status != inventory.UnitStatusActive {
				return fmt.Errorf("sales: unit imei %q has status %s: %w", unit.IMEI, unit.Status, shared.ErrInvalidState)
			}
			price := unit.SalePrice
			if itemReq.UnitSalePrice != nil {
				price = *itemReq.UnitSalePrice
			}
			if price < unit.PurchasePrice {
				return fmt.Errorf("sales: imei %q sale price %s below purchase price %s: %w",
					unit.IMEI, shared.FormatAmount(price), shared.FormatAmount(unit.PurchasePrice), shared.ErrPricingViolation)
			}
			if price <= 0 {
				return fmt.Errorf("sales: imei %q sale price must be positive: %w", unit.IMEI, shared.ErrPricingViolation)
			}
			summed += float64(itemReq.QuantitySold) * price
			lines = append(lines, pricedLine{unit: unit, req: itemReq, price: price})
		}

		total := summed
		if req.NegotiatedTotal != nil {
			total = *req.NegotiatedTotal
		}
		status := DerivePaymentStatus(total, req.AmountPaid)

		saleID, err := tx.InsertSale(ctx, Sale{
			ClientID:         clientID,
			TotalAmount:      total,
			AmountPaid:       req.AmountPaid,
			PaymentStatus:    status,
			IsSpecialInvoice: req.IsSpecialInvoice,
		})
		if err != nil {
			return err
		}

		for _, line := range lines {
			unitID := line.unit.ID
			if _, err := tx.InsertSaleItem(ctx, SaleItem{
				SaleID:            saleID,
				UnitID:            &unitID,
				IMEI:              line.req.IMEI,
				QuantitySold:      line.req.QuantitySold,
				UnitSalePrice:     line.price,
				UnitPurchasePrice: line.unit.PurchasePrice,
				Brand:             line.unit.Brand,
				Model:             line.unit.Model,
				Storage:           line.unit.Storage,
				Kind:              line.unit.Kind,
				CartonType:        line.unit.CartonType,
				Status:            ItemStatusActive,
				IsSpecialSaleItem: req.IsSpecialInvoice,
			}); err != nil {
				return err
			}
			if err := tx.UpdateUnitStatus(ctx, line.unit.ID, line.unit.IMEI, inventory.UnitStatusSold); err != nil {
				return err
			}
		}

		result = CreateSaleResult{SaleID: saleID, TotalAmount: total, AmountPaid: req.AmountPaid, PaymentStatus: status}
		return nil
	})
	if err != nil {
		if insertedKey {
			// release the key even when the request context is already
			// cancelled, otherwise a timed-out sale 409s its own retry
			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if derr := s.idempotency.Delete(dctx, idemKey); derr != nil {
				s.logger.Warn("idempotency key release failed", slog.Any("error", derr), slog.String("key", idemKey))
			}
		}
		return nil, err
	}

	s.afterMutation(ctx, "vente:creation", result.SaleID, map[string]any{
		"client":          req.ClientName,
		"items":           len(req.Items),
		"montant_total":   result.TotalAmount,
		"montant_paye":    result.AmountPaid,
		"statut_paiement": result.PaymentStatus,
	})
	if s.metrics != nil {
		s.metrics.SaleCreated()
	}
	return &result, nil
}

func (s *Service) resolveClient(ctx context.Context, tx TxRepository, name string, phone *string) (int64, error) {
	client, err := tx.GetClientByName(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return tx.CreateClient(ctx, name, phone)
		}
		return 0, err
	}
	if phone != nil && *phone != "" && (client.Phone == nil || *client.Phone != *phone) {
		if err := tx.UpdateClientPhone(ctx, client.ID, *phone); err != nil {
			return 0, err
		}
	}
	return client.ID, nil
}

// ============================================================================
// CORRECTION PROCESSOR
// ============================================================================

// CancelItem voids a line and makes the unit sellable again unless the
// line belongs to a special sale.
func (s *Service) CancelItem(ctx context.Context, req CancelItemRequest) error {
	if req.SaleID == 0 || req.ItemID == 0 || req.IMEI == "" || req.Reason == "" {
		return fmt.Errorf("sales: cancel requires sale, item, imei and reason: %w", shared.ErrInvalidInput)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, req.SaleID)
		if err != nil {
			return err
		}
		item, err := tx.GetSaleItem(ctx, req.SaleID, req.ItemID)
		if err != nil {
			return err
		}
		if item.Status != ItemStatusActive {
			return fmt.Errorf("sales: item %d already %s: %w", item.ID, item.Status, shared.ErrConflict)
		}
		if err := tx.MarkItemStatus(ctx, req.SaleID, req.ItemID, ItemStatusCancelled, req.Reason); err != nil {
			return err
		}
		if unitID := coalesceUnitID(req.UnitID, item.UnitID); !item.IsSpecialSaleItem && unitID != nil {
			if err := tx.UpdateUnitStatus(ctx, *unitID, req.IMEI, inventory.UnitStatusActive); err != nil {
				return err
			}
		}
		return s.recomputeSale(ctx, tx, sale)
	})
	if err != nil {
		return err
	}

	s.afterMutation(ctx, "vente:annulation", req.SaleID, map[string]any{"item_id": req.ItemID, "imei": req.IMEI, "reason": req.Reason})
	if s.metrics != nil {
		s.metrics.CorrectionApplied("annulation")
	}
	return nil
}

// ReturnItem records a customer return: the line becomes retourne, the
// unit becomes returned (not resellable), and an audit record is
// appended. A client that cannot be resolved by name degrades to a
// sentinel reference instead of failing the return.
func (s *Service) ReturnItem(ctx context.Context, req ReturnItemRequest) error {
	if req.SaleID == 0 || req.ItemID == 0 || req.IMEI == "" || req.Reason == "" || req.ClientName == "" {
		return fmt.Errorf("sales: return requires sale, item, imei, reason and client name: %w", shared.ErrInvalidInput)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, req.SaleID)
		if err != nil {
			return err
		}
		item, err := tx.GetSaleItem(ctx, req.SaleID, req.ItemID)
		if err != nil {
			return err
		}
		if item.Status != ItemStatusActive {
			return fmt.Errorf("sales: item %d already %s: %w", item.ID, item.Status, shared.ErrConflict)
		}
		if err := tx.MarkItemStatus(ctx, req.SaleID, req.ItemID, ItemStatusReturned, req.Reason); err != nil {
			return err
		}
		// the recorded line decides the reversal; the request flag is
		// wire input only and may be stale or omitted
		unitID := coalesceUnitID(req.UnitID, item.UnitID)
		if !item.IsSpecialSaleItem && unitID != nil {
			if err := tx.UpdateUnitStatus(ctx, *unitID, req.IMEI, inventory.UnitStatusReturned); err != nil {
				return err
			}
		}

		var clientID int64
		client, err := tx.GetClientByName(ctx, req.ClientName)
		switch {
		case err == nil:
			clientID = client.ID
		case errors.Is(err, shared.ErrNotFound):
			s.logger.Warn("return client not found, using sentinel", slog.String("client", req.ClientName))
		default:
			return err
		}

		if err := tx.InsertReturn(ctx, Return{
			ItemID:            req.ItemID,
			SaleID:            req.SaleID,
			ClientID:          clientID,
			Brand:             req.Brand,
			Model:             req.Model,
			Storage:           req.Storage,
			Kind:              req.Kind,
			CartonType:        req.CartonType,
			IMEI:              req.IMEI,
			Reason:            req.Reason,
			Status:            string(ItemStatusReturned),
			UnitID:            unitID,
			IsSpecialSaleItem: item.IsSpecialSaleItem,
		}); err != nil {
			return err
		}
		return s.recomputeSale(ctx, tx, sale)
	})
	if err != nil {
		return err
	}

	s.afterMutation(ctx, "vente:retour", req.SaleID, map[string]any{"item_id": req.ItemID, "imei": req.IMEI, "reason": req.Reason})
	if s.metrics != nil {
		s.metrics.CorrectionApplied("retour")
	}
	return nil
}

// MarkRendu records that the customer handed the unit back: the line
// becomes rendu with a restock timestamp and the unit returns to stock
// with its on-hand quantity incremented.
func (s *Service) MarkRendu(ctx context.Context, req RenduRequest) error {
	if req.SaleID == 0 || req.ItemID == 0 || req.IMEI == "" || req.Reason == "" {
		return fmt.Errorf("sales: rendu requires sale, item, imei and reason: %w", shared.ErrInvalidInput)
	}
	if req.UnitID == nil {
		return fmt.Errorf("sales: rendu requires the unit id: %w", shared.ErrInvalidInput)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, req.SaleID)
		if err != nil {
			return err
		}
		item, err := tx.GetSaleItem(ctx, req.SaleID, req.ItemID)
		if err != nil {
			return err
		}
		if item.Status != ItemStatusActive {
			return fmt.Errorf("sales: item %d already %s: %w", item.ID, item.Status, shared.ErrConflict)
		}
		if err := tx.MarkItemStatus(ctx, req.SaleID, req.ItemID, ItemStatusRestocked, req.Reason); err != nil {
			return err
		}
		if err := tx.RestockUnit(ctx, *req.UnitID, req.IMEI); err != nil {
			return err
		}
		return s.recomputeSale(ctx, tx, sale)
	})
	if err != nil {
		return err
	}

	s.afterMutation(ctx, "vente:rendu", req.SaleID, map[string]any{"item_id": req.ItemID, "imei": req.IMEI, "reason": req.Reason})
	if s.metrics != nil {
		s.metrics.CorrectionApplied("rendu")
	}
	return nil
}

// recomputeSale is the shared recomputation run after any item-status
// change: derive the new total from active lines, re-derive payment
// status against what was already collected, project onto the invoice
// mirror, then apply the full-inactivity override.
func (s *Service) recomputeSale(ctx context.Context, tx TxRepository, sale *Sale) error {
	newTotal, err := tx.SumActiveItems(ctx, sale.ID)
	if err != nil {
		return err
	}
	status := DerivePaymentStatus(newTotal, sale.AmountPaid)
	if err := tx.UpdateSaleTotals(ctx, sale.ID, newTotal, status); err != nil {
		return err
	}
	if err := tx.SyncInvoice(ctx, invoices.Sync{
		SaleID:         sale.ID,
		Status:         string(status),
		OriginalAmount: newTotal,
		AmountDue:      newTotal - sale.AmountPaid,
		AmountPaid:     sale.AmountPaid,
	}); err != nil {
		return err
	}

	total, inactive, err := tx.CountItems(ctx, sale.ID)
	if err != nil {
		return err
	}
	if total > 0 && inactive == total {
		if err := tx.ForceCancelSale(ctx, sale.ID); err != nil {
			return err
		}
		if err := tx.CancelInvoice(ctx, sale.ID); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// PAYMENT UPDATE
// ============================================================================

// UpdatePayment adjusts the collected amount and optionally the
// negotiated total of a sale, serialized on the sale row lock.
func (s *Service) UpdatePayment(ctx context.Context, saleID int64, req UpdatePaymentRequest) (*Sale, error) {
	if req.AmountPaid < 0 {
		return nil, fmt.Errorf("sales: amount paid must be zero or positive: %w", shared.ErrInvalidInput)
	}

	var updated Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		total := sale.TotalAmount
		if req.NewTotalAmount != nil {
			total = *req.NewTotalAmount
		}
		if total <= 0 {
			return fmt.Errorf("sales: total amount must be positive: %w", shared.ErrInvalidInput)
		}
		if req.AmountPaid > total {
			return fmt.Errorf("sales: paid %s exceeds total %s: %w",
				shared.FormatAmount(req.AmountPaid), shared.FormatAmount(total), shared.ErrConflict)
		}
		if total < sale.AmountPaid && sale.AmountPaid > 0 {
			return fmt.Errorf("sales: new total %s below already collected %s: %w",
				shared.FormatAmount(total), shared.FormatAmount(sale.AmountPaid), shared.ErrConflict)
		}

		status := DerivePaymentStatus(total, req.AmountPaid)
		if err := tx.UpdateSalePayment(ctx, saleID, req.AmountPaid, total, status); err != nil {
			return err
		}
		if err := tx.SyncInvoice(ctx, invoices.Sync{
			SaleID:         saleID,
			Status:         string(status),
			OriginalAmount: total,
			AmountDue:      total - req.AmountPaid,
			AmountPaid:     req.AmountPaid,
		}); err != nil {
			return err
		}
		updated = *sale
		updated.TotalAmount = total
		updated.AmountPaid = req.AmountPaid
		updated.PaymentStatus = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, "vente:paiement", saleID, map[string]any{
		"montant_paye":  updated.AmountPaid,
		"montant_total": updated.TotalAmount,
	})
	return &updated, nil
}

// ============================================================================
// READS
// ============================================================================

// GetSale loads a sale with its aggregated items.
func (s *Service) GetSale(ctx context.Context, saleID int64) (*SaleWithItems, error) {
	return s.repo.GetSale(ctx, saleID)
}

// ListSales returns all sales with items, newest first.
func (s *Service) ListSales(ctx context.Context) ([]SaleWithItems, error) {
	return s.repo.ListSales(ctx)
}

// ListReturns returns the returns audit trail.
func (s *Service) ListReturns(ctx context.Context) ([]Return, error) {
	return s.repo.ListReturns(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Service) afterMutation(ctx context.Context, action string, saleID int64, meta map[string]any) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   action,
			Entity:   "vente",
			EntityID: fmt.Sprintf("%d", saleID),
			Meta:     meta,
		}); err != nil {
			s.logger.Warn("audit record failed", slog.Any("error", err), slog.String("action", action))
		}
	}
}

func coalesceUnitID(requested, recorded *int64) *int64 {
	if requested != nil {
		return requested
	}
	return recorded
}

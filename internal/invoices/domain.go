// Package invoices keeps the financial mirror of each sale. The sale
// engine only updates existing rows; creating the row for a special
// sale is this package's own concern.
package invoices

import "time"

// Invoice mirrors a sale's financial state in the factures table.
type Invoice struct {
	ID             int64     `json:"id"`
	SaleID         int64     `json:"vente_id"`
	Status         string    `json:"statut_facture"`
	OriginalAmount float64   `json:"montant_original_facture"`
	AmountDue      float64   `json:"montant_actuel_du"`
	AmountPaid     float64   `json:"montant_paye_facture"`
	CreatedAt      time.Time `json:"date_creation"`
}

// Sync carries the recomputed figures projected onto the mirror.
type Sync struct {
	SaleID         int64
	Status         string
	OriginalAmount float64
	AmountDue      float64
	AmountPaid     float64
}

// CreateRequest creates the mirror row for a special/negotiated sale.
type CreateRequest struct {
	SaleID         int64   `json:"vente_id" validate:"required,gt=0"`
	Status         string  `json:"statut_facture" validate:"required"`
	OriginalAmount float64 `json:"montant_original_facture" validate:"gt=0"`
	AmountPaid     float64 `json:"montant_paye_facture" validate:"gte=0"`
}

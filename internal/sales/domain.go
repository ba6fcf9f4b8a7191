// Package sales implements the sale transaction and inventory
// reconciliation engine: atomic sale creation against live stock,
// post-sale corrections (annulation, retour, rendu), payment updates,
// and the recomputation that keeps totals, payment status, unit status
// and the invoice mirror consistent.
package sales

import "time"

// PaymentStatus is the derived payment state of a sale. The wire values
// are the shop's historical French vocabulary.
type PaymentStatus string

const (
	PaymentAwaiting  PaymentStatus = "en_attente_paiement"
	PaymentPartial   PaymentStatus = "paiement_partiel"
	PaymentFull      PaymentStatus = "payee_integralement"
	PaymentCancelled PaymentStatus = "annulee"
)

// ItemStatus is the lifecycle state of one sale line.
type ItemStatus string

const (
	ItemStatusActive    ItemStatus = "actif"
	ItemStatusCancelled ItemStatus = "annule"
	ItemStatusReturned  ItemStatus = "retourne"
	ItemStatusRestocked ItemStatus = "rendu"
)

// Terminal reports whether the line left the active state. Terminal
// lines accept no further transitions.
func (s ItemStatus) Terminal() bool {
	switch s {
	case ItemStatusCancelled, ItemStatusReturned, ItemStatusRestocked:
		return true
	}
	return false
}

// Sale is a row in the ventes table.
type Sale struct {
	ID               int64         `json:"vente_id"`
	ClientID         int64         `json:"client_id"`
	Date             time.Time     `json:"date_vente"`
	TotalAmount      float64       `json:"montant_total"`
	AmountPaid       float64       `json:"montant_paye"`
	PaymentStatus    PaymentStatus `json:"statut_paiement"`
	IsSpecialInvoice bool          `json:"is_facture_speciale"`
}

// SaleItem is one unit's line within a sale. Unit attributes are
// snapshotted at sale time so the record survives later catalog edits.
type SaleItem struct {
	ID                 int64      `json:"item_id"`
	SaleID             int64      `json:"vente_id"`
	UnitID             *int64     `json:"produit_id,omitempty"`
	IMEI               string     `json:"imei"`
	QuantitySold       int        `json:"quantite_vendue"`
	UnitSalePrice      float64    `json:"prix_unitaire_vente"`
	UnitPurchasePrice  float64    `json:"prix_unitaire_achat"`
	Brand              string     `json:"marque"`
	Model              string     `json:"modele"`
	Storage            *string    `json:"stockage,omitempty"`
	Kind               *string    `json:"type,omitempty"`
	CartonType         *string    `json:"type_carton,omitempty"`
	Status             ItemStatus `json:"statut_vente"`
	IsSpecialSaleItem  bool       `json:"is_special_sale_item"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	RestockedAt        *time.Time `json:"rendu_date,omitempty"`
	SupplierName       *string    `json:"nom_fournisseur,omitempty"`
}

// SaleWithItems is the aggregated read model served to the frontend.
type SaleWithItems struct {
	Sale
	ClientName  string     `json:"client_nom"`
	ClientPhone *string    `json:"client_telephone,omitempty"`
	Items       []SaleItem `json:"articles"`
}

// Return is the append-only audit record written when a line is
// returned. Never mutated after creation.
type Return struct {
	ID                int64     `json:"id"`
	ItemID            int64     `json:"vente_item_id"`
	SaleID            int64     `json:"vente_id"`
	ClientID          int64     `json:"client_id"`
	Brand             string    `json:"marque"`
	Model             string    `json:"modele"`
	Storage           *string   `json:"stockage,omitempty"`
	Kind              *string   `json:"type,omitempty"`
	CartonType        *string   `json:"type_carton,omitempty"`
	IMEI              string    `json:"imei"`
	Reason            string    `json:"reason"`
	ReturnDate        time.Time `json:"return_date"`
	Status            string    `json:"status"`
	UnitID            *int64    `json:"product_id,omitempty"`
	IsSpecialSaleItem bool      `json:"is_special_sale_item"`
}

// ============================================================================
// REQUESTS
// ============================================================================

// SaleItemRequest is one submitted line of a new sale.
type SaleItemRequest struct {
	IMEI          string   `json:"imei" validate:"required"`
	Brand         string   `json:"marque" validate:"required"`
	Model         string   `json:"modele" validate:"required"`
	Storage       *string  `json:"stockage,omitempty"`
	Kind          *string  `json:"type,omitempty"`
	CartonType    *string  `json:"type_carton,omitempty"`
	QuantitySold  int      `json:"quantite_vendue" validate:"required,gt=0"`
	UnitSalePrice *float64 `json:"prix_unitaire_vente,omitempty" validate:"omitempty,gt=0"`
}

// CreateSaleRequest creates a sale atomically against live inventory.
type CreateSaleRequest struct {
	ClientName       string            `json:"nom_client" validate:"required"`
	ClientPhone      *string           `json:"client_telephone,omitempty"`
	Items            []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
	AmountPaid       float64           `json:"montant_paye" validate:"gte=0"`
	IsSpecialInvoice bool              `json:"is_facture_speciale"`
	NegotiatedTotal  *float64          `json:"montant_negocie,omitempty" validate:"omitempty,gt=0"`
}

// CreateSaleResult reports the committed sale back to the caller.
type CreateSaleResult struct {
	SaleID        int64         `json:"vente_id"`
	TotalAmount   float64       `json:"montant_total"`
	AmountPaid    float64       `json:"montant_paye"`
	PaymentStatus PaymentStatus `json:"statut_paiement"`
}

// CancelItemRequest voids one line of a sale.
type CancelItemRequest struct {
	SaleID int64  `json:"venteId" validate:"required,gt=0"`
	ItemID int64  `json:"itemId" validate:"required,gt=0"`
	UnitID *int64 `json:"produitId,omitempty"`
	IMEI   string `json:"imei" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// ReturnItemRequest records a customer return with its audit snapshot.
type ReturnItemRequest struct {
	ItemID            int64   `json:"vente_item_id" validate:"required,gt=0"`
	SaleID            int64   `json:"vente_id" validate:"required,gt=0"`
	ClientName        string  `json:"client_nom" validate:"required"`
	IMEI              string  `json:"imei" validate:"required"`
	Reason            string  `json:"reason" validate:"required"`
	UnitID            *int64  `json:"produit_id,omitempty"`
	IsSpecialSaleItem bool    `json:"is_special_sale_item"`
	Brand             string  `json:"marque"`
	Model             string  `json:"modele"`
	Storage           *string `json:"stockage,omitempty"`
	Kind              *string `json:"type,omitempty"`
	CartonType        *string `json:"type_carton,omitempty"`
}

// RenduRequest marks a line as handed back and restocks the unit.
type RenduRequest struct {
	ItemID     int64   `json:"vente_item_id" validate:"required,gt=0"`
	SaleID     int64   `json:"vente_id" validate:"required,gt=0"`
	IMEI       string  `json:"imei" validate:"required"`
	Reason     string  `json:"reason" validate:"required"`
	UnitID     *int64  `json:"produit_id,omitempty"`
	Brand      string  `json:"marque"`
	Model      string  `json:"modele"`
	Storage    *string `json:"stockage,omitempty"`
	Kind       *string `json:"type,omitempty"`
	CartonType *string `json:"type_carton,omitempty"`
	ClientName string  `json:"client_nom,omitempty"`
}

// UpdatePaymentRequest adjusts the collected amount and optionally the
// negotiated total of a sale.
type UpdatePaymentRequest struct {
	AmountPaid     float64  `json:"montant_paye" validate:"gte=0"`
	NewTotalAmount *float64 `json:"new_total_amount,omitempty"`
}

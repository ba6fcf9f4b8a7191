// Package inventory owns the availability state of every physical unit
// in stock, identified by IMEI plus its catalog attributes.
package inventory

import "time"

// UnitStatus is the availability state of an inventory unit.
type UnitStatus string

const (
	UnitStatusActive   UnitStatus = "active"
	UnitStatusSold     UnitStatus = "sold"
	UnitStatusReturned UnitStatus = "returned"
)

// Unit is one physical unit in the products table.
type Unit struct {
	ID            int64      `json:"id"`
	IMEI          string     `json:"imei"`
	Brand         string     `json:"marque"`
	Model         string     `json:"modele"`
	Storage       *string    `json:"stockage,omitempty"`
	Kind          *string    `json:"type,omitempty"`
	CartonType    *string    `json:"type_carton,omitempty"`
	Status        UnitStatus `json:"status"`
	PurchasePrice float64    `json:"prix_achat"`
	SalePrice     float64    `json:"prix_vente"`
	Quantity      int        `json:"quantite"`
	SupplierID    *int64     `json:"fournisseur_id,omitempty"`
	AddedAt       time.Time  `json:"date_ajout"`
}

// Lookup identifies a unit by the full attribute tuple used at sale
// time. Optional attributes match only when both sides are NULL or both
// carry the same value.
type Lookup struct {
	IMEI       string
	Brand      string
	Model      string
	Storage    *string
	Kind       *string
	CartonType *string
}

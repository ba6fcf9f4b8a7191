// Package clients is the customer directory: lookup by name, creation on
// first sale, phone updates.
package clients

import "time"

// Client is a record in the clients table.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"nom"`
	Phone     *string   `json:"telephone,omitempty"`
	CreatedAt time.Time `json:"date_creation"`
}

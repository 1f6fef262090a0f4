package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ArtworkStatus is the availability of a one-of-a-kind piece
type ArtworkStatus string

const (
	ArtworkStatusAvailable  ArtworkStatus = "AVAILABLE"
	ArtworkStatusReserved   ArtworkStatus = "RESERVED"
	ArtworkStatusSold       ArtworkStatus = "SOLD"
	ArtworkStatusNotForSale ArtworkStatus = "NOT_FOR_SALE"
)

// Valid reports whether s is a known artwork status
func (s ArtworkStatus) Valid() bool {
	switch s {
	case ArtworkStatusAvailable, ArtworkStatusReserved, ArtworkStatusSold, ArtworkStatusNotForSale:
		return true
	}
	return false
}

// Artwork represents a unique piece in the catalog
type Artwork struct {
	ID            string          `db:"id" json:"id"`
	Title         string          `db:"title" json:"title"`
	Slug          string          `db:"slug" json:"slug"`
	Description   string          `db:"description" json:"description,omitempty"`
	Medium        string          `db:"medium" json:"medium,omitempty"`
	Dimensions    string          `db:"dimensions" json:"dimensions,omitempty"`
	ImageURL      string          `db:"image_url" json:"imageUrl,omitempty"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Status        ArtworkStatus   `db:"status" json:"status"`
	HeldByOrderID *string         `db:"held_by_order_id" json:"-"`
	ReservedAt    *time.Time      `db:"reserved_at" json:"-"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

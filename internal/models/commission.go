package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionStatus represents where a made-to-order piece is in its lifecycle
type CommissionStatus string

const (
	CommissionStatusPending    CommissionStatus = "PENDING"
	CommissionStatusReviewing  CommissionStatus = "REVIEWING"
	CommissionStatusAccepted   CommissionStatus = "ACCEPTED"
	CommissionStatusInProgress CommissionStatus = "IN_PROGRESS"
	CommissionStatusRevision   CommissionStatus = "REVISION"
	CommissionStatusCompleted  CommissionStatus = "COMPLETED"
	CommissionStatusCancelled  CommissionStatus = "CANCELLED"
)

var allCommissionStatuses = []CommissionStatus{
	CommissionStatusPending,
	CommissionStatusReviewing,
	CommissionStatusAccepted,
	CommissionStatusInProgress,
	CommissionStatusRevision,
	CommissionStatusCompleted,
	CommissionStatusCancelled,
}

// commissionTransitions is unconstrained for now; admins drive the workflow by hand
var commissionTransitions = func() map[CommissionStatus][]CommissionStatus {
	table := make(map[CommissionStatus][]CommissionStatus, len(allCommissionStatuses))
	for _, from := range allCommissionStatuses {
		for _, to := range allCommissionStatuses {
			if from != to {
				table[from] = append(table[from], to)
			}
		}
	}
	return table
}()

// Valid reports whether s is a known commission status
func (s CommissionStatus) Valid() bool {
	_, ok := commissionTransitions[s]
	return ok
}

// CanTransitionTo reports whether an admin may move a commission from s to next
func (s CommissionStatus) CanTransitionTo(next CommissionStatus) bool {
	if s == next {
		return next.Valid()
	}

	for _, allowed := range commissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentType selects which commission payment an intent is for
type PaymentType string

const (
	PaymentTypeDeposit PaymentType = "deposit"
	PaymentTypeFull    PaymentType = "full"
)

// Valid reports whether t is deposit or full
func (t PaymentType) Valid() bool {
	return t == PaymentTypeDeposit || t == PaymentTypeFull
}

// ImageKind separates customer references from admin progress shots
type ImageKind string

const (
	ImageKindReference ImageKind = "reference"
	ImageKindProgress  ImageKind = "progress"
)

// Commission is a custom artwork request
type Commission struct {
	ID               string              `db:"id" json:"id"`
	CommissionNumber string              `db:"commission_number" json:"commissionNumber"`
	CustomerID       string              `db:"customer_id" json:"customerId"`
	Style            string              `db:"style" json:"style"`
	Size             string              `db:"size" json:"size"`
	Description      string              `db:"description" json:"description"`
	Deadline         *time.Time          `db:"deadline" json:"deadline,omitempty"`
	Status           CommissionStatus    `db:"status" json:"status"`
	EstimatedPrice   decimal.Decimal     `db:"estimated_price" json:"estimatedPrice"`
	FinalPrice       decimal.NullDecimal `db:"final_price" json:"finalPrice"`
	PaymentStatus    PaymentStatus       `db:"payment_status" json:"paymentStatus"`
	DepositAmount    decimal.Decimal     `db:"deposit_amount" json:"depositAmount"`
	PaymentIntentID  *string             `db:"payment_intent_id" json:"paymentIntentId,omitempty"`
	StartedAt        *time.Time          `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt      *time.Time          `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt        time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updatedAt"`

	ReferenceImages []CommissionImage `db:"-" json:"referenceImages"`
	ProgressImages  []CommissionImage `db:"-" json:"progressImages"`
	Notes           []CommissionNote  `db:"-" json:"notes"`
	Customer        *Customer         `db:"-" json:"customer,omitempty"`
}

// Price is the final price when set, otherwise the estimate
func (c *Commission) Price() decimal.Decimal {
	if c.FinalPrice.Valid {
		return c.FinalPrice.Decimal
	}
	return c.EstimatedPrice
}

// DepositDue is the deposit share of the current price
func (c *Commission) DepositDue() decimal.Decimal {
	return c.Price().Mul(DepositRate).Round(2)
}

// BalanceDue is what remains after any deposit already received
func (c *Commission) BalanceDue() decimal.Decimal {
	balance := c.Price().Sub(c.DepositAmount)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// CommissionImage is an uploaded image attached to a commission
type CommissionImage struct {
	ID           string    `db:"id" json:"id"`
	CommissionID string    `db:"commission_id" json:"-"`
	Kind         ImageKind `db:"kind" json:"kind"`
	URL          string    `db:"url" json:"url"`
	PublicID     string    `db:"public_id" json:"-"`
	Description  string    `db:"description" json:"description,omitempty"`
	Position     int       `db:"position" json:"position"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// CommissionNote is one entry in the append-only timeline
type CommissionNote struct {
	ID           string    `db:"id" json:"id"`
	CommissionID string    `db:"commission_id" json:"-"`
	Body         string    `db:"body" json:"body"`
	IsSystem     bool      `db:"is_system" json:"isSystem"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// NewCommissionNote creates a timeline entry
func NewCommissionNote(commissionID, body string, system bool) *CommissionNote {
	return &CommissionNote{
		ID:           GenerateID(),
		CommissionID: commissionID,
		Body:         body,
		IsSystem:     system,
		CreatedAt:    GetCurrentTime(),
	}
}

// CommissionFilter narrows a commission listing
type CommissionFilter struct {
	Status        CommissionStatus
	CustomerEmail string
	Page          int
	Limit         int
}

// Normalize clamps pagination to sane bounds
func (f *CommissionFilter) Normalize() {
	f.Page, f.Limit = normalizePage(f.Page, f.Limit)
}

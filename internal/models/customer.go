package models

import (
	"strings"
	"time"
)

// Role is the authorization level of a customer account
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Customer is keyed by email. Guests have no password and cannot log in.
type Customer struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	FirstName    string    `db:"first_name" json:"firstName"`
	LastName     string    `db:"last_name" json:"lastName"`
	Phone        string    `db:"phone" json:"phone,omitempty"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// HasPassword reports whether the account can authenticate
func (c *Customer) HasPassword() bool {
	return c.PasswordHash != nil && *c.PasswordHash != ""
}

// FullName joins first and last name
func (c *Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// CustomerDetails is the buyer information submitted with a guest checkout or commission request
type CustomerDetails struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// NormalizeEmail lowercases and trims an address so lookups are case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewGuestCustomer creates a customer record without credentials
func NewGuestCustomer(details CustomerDetails) *Customer {
	now := GetCurrentTime()

	return &Customer{
		ID:        GenerateID(),
		Email:     NormalizeEmail(details.Email),
		FirstName: strings.TrimSpace(details.FirstName),
		LastName:  strings.TrimSpace(details.LastName),
		Phone:     strings.TrimSpace(details.Phone),
		Role:      RoleCustomer,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Address is a shipping address owned by a customer
type Address struct {
	ID         string    `db:"id" json:"id"`
	CustomerID string    `db:"customer_id" json:"-"`
	Line1      string    `db:"line1" json:"line1"`
	Line2      string    `db:"line2" json:"line2,omitempty"`
	City       string    `db:"city" json:"city"`
	State      string    `db:"state" json:"state,omitempty"`
	PostalCode string    `db:"postal_code" json:"postalCode"`
	Country    string    `db:"country" json:"country"`
	CreatedAt  time.Time `db:"created_at" json:"-"`
}

// MissingField returns the name of the first required field that is empty
func (a *Address) MissingField() string {
	switch {
	case strings.TrimSpace(a.Line1) == "":
		return "line1"
	case strings.TrimSpace(a.City) == "":
		return "city"
	case strings.TrimSpace(a.PostalCode) == "":
		return "postalCode"
	case strings.TrimSpace(a.Country) == "":
		return "country"
	}
	return ""
}

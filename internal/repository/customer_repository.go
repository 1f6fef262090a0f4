package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

const customerColumns = `id, email, first_name, last_name, phone, password_hash, role, created_at, updated_at`

// CustomerRepository handles database operations for customers and their addresses
type CustomerRepository struct {
	q      database.Querier
	logger logger.Logger
}

// NewCustomerRepository creates a new CustomerRepository
func NewCustomerRepository(db *database.Database, logger logger.Logger) *CustomerRepository {
	return &CustomerRepository{
		q:      db.DB,
		logger: logger,
	}
}

// WithTx returns a copy of the repository bound to tx
func (r *CustomerRepository) WithTx(tx *sqlx.Tx) *CustomerRepository {
	return &CustomerRepository{q: tx, logger: r.logger}
}

// Create inserts a new customer, failing with ErrDuplicate if the email is taken
func (r *CustomerRepository) Create(ctx context.Context, customer *models.Customer) error {
	query := `
		INSERT INTO customers (id, email, first_name, last_name, phone, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q.ExecContext(
		ctx,
		query,
		customer.ID,
		customer.Email,
		customer.FirstName,
		customer.LastName,
		customer.Phone,
		customer.PasswordHash,
		customer.Role,
		customer.CreatedAt,
		customer.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to create customer", "error", err, "customerID", customer.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// FindOrCreate returns the customer with the given email, creating a guest record if none exists.
// Blank name fields on an existing record are filled from the submitted details.
func (r *CustomerRepository) FindOrCreate(ctx context.Context, guest *models.Customer) (*models.Customer, error) {
	query := `
		INSERT INTO customers (id, email, first_name, last_name, phone, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (email) DO UPDATE SET
			first_name = COALESCE(NULLIF(customers.first_name, ''), EXCLUDED.first_name),
			last_name = COALESCE(NULLIF(customers.last_name, ''), EXCLUDED.last_name),
			phone = COALESCE(NULLIF(customers.phone, ''), EXCLUDED.phone),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + customerColumns

	var customer models.Customer
	err := r.q.GetContext(
		ctx,
		&customer,
		query,
		guest.ID,
		models.NormalizeEmail(guest.Email),
		guest.FirstName,
		guest.LastName,
		guest.Phone,
		models.RoleCustomer,
		models.GetCurrentTime(),
	)

	if err != nil {
		r.logger.Error("Failed to find or create customer", "error", err, "email", guest.Email)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &customer, nil
}

// GetByID retrieves a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	return r.getOne(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
}

// GetByEmail retrieves a customer by email, case-insensitively
func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return r.getOne(ctx, `SELECT `+customerColumns+` FROM customers WHERE email = $1`, models.NormalizeEmail(email))
}

func (r *CustomerRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Customer, error) {
	var customer models.Customer
	err := r.q.GetContext(ctx, &customer, query, arg)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get customer", "error", err, "key", arg)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &customer, nil
}

// SetCredentials stores a password hash and role for an existing customer
func (r *CustomerRepository) SetCredentials(ctx context.Context, id, passwordHash string, role models.Role) error {
	query := `
		UPDATE customers
		SET password_hash = $1, role = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.q.ExecContext(ctx, query, passwordHash, role, models.GetCurrentTime(), id)

	if err != nil {
		r.logger.Error("Failed to set customer credentials", "error", err, "customerID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return requireAffected(result)
}

// CreateAddress inserts a shipping address
func (r *CustomerRepository) CreateAddress(ctx context.Context, address *models.Address) error {
	query := `
		INSERT INTO addresses (id, customer_id, line1, line2, city, state, postal_code, country, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q.ExecContext(
		ctx,
		query,
		address.ID,
		address.CustomerID,
		address.Line1,
		address.Line2,
		address.City,
		address.State,
		address.PostalCode,
		address.Country,
		address.CreatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create address", "error", err, "customerID", address.CustomerID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetAddress retrieves an address by ID
func (r *CustomerRepository) GetAddress(ctx context.Context, id string) (*models.Address, error) {
	query := `
		SELECT id, customer_id, line1, line2, city, state, postal_code, country, created_at
		FROM addresses
		WHERE id = $1
	`

	var address models.Address
	err := r.q.GetContext(ctx, &address, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get address", "error", err, "addressID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &address, nil
}

func requireAffected(result sql.Result) error {
	rows, err := result.RowsAffected()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

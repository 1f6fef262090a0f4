package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/vaidashi/gallery-api/internal/auth"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/internal/repository"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// RegisterInput creates or claims a customer account
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
}

// Session is a signed identity token and the account it belongs to
type Session struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Customer  *models.Customer `json:"customer"`
}

// AuthService manages credentials and issues identity tokens
type AuthService struct {
	customers *repository.CustomerRepository
	tokens    *auth.TokenIssuer
	logger    logger.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(customers *repository.CustomerRepository, tokens *auth.TokenIssuer, logger logger.Logger) *AuthService {
	return &AuthService{
		customers: customers,
		tokens:    tokens,
		logger:    logger,
	}
}

// Register creates an account, or sets a password on a guest record created at checkout.
// An email that already has a password is a conflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	if err := validateCustomerDetails(models.CustomerDetails{Email: in.Email, FirstName: in.FirstName, LastName: in.LastName}); err != nil {
		return nil, err
	}

	if len(in.Password) < auth.MinPasswordLength {
		return nil, apperrors.NewValidationError("password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	customer, err := s.customers.FindOrCreate(ctx, models.NewGuestCustomer(models.CustomerDetails{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
	}))
	if err != nil {
		return nil, translate(err, "customer")
	}

	if customer.HasPassword() {
		return nil, apperrors.NewConflictError("an account with this email already exists")
	}

	if err := s.customers.SetCredentials(ctx, customer.ID, hash, customer.Role); err != nil {
		return nil, translate(err, "customer")
	}
	customer.PasswordHash = &hash

	s.logger.Info("Customer registered", "customerID", customer.ID)
	return s.session(customer)
}

// Login exchanges an email and password for a token. Guest records without a password cannot log in.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	invalid := apperrors.NewUnauthorizedError("invalid email or password")

	customer, err := s.customers.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.Is(err, repository.ErrNotFound) {
			return nil, invalid
		}
		return nil, translate(err, "customer")
	}

	if !customer.HasPassword() {
		return nil, invalid
	}

	if err := auth.CheckPassword(*customer.PasswordHash, password); err != nil {
		s.logger.Info("Failed login", "customerID", customer.ID)
		return nil, invalid
	}

	return s.session(customer)
}

// CreateAdmin creates or promotes an admin account with the given password
func (s *AuthService) CreateAdmin(ctx context.Context, email, password string) (*models.Customer, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewValidationError("email is invalid")
	}

	if len(password) < auth.MinPasswordLength {
		return nil, apperrors.NewValidationError("password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	customer, err := s.customers.FindOrCreate(ctx, models.NewGuestCustomer(models.CustomerDetails{
		Email:     email,
		FirstName: strings.SplitN(email, "@", 2)[0],
	}))
	if err != nil {
		return nil, translate(err, "customer")
	}

	if err := s.customers.SetCredentials(ctx, customer.ID, hash, models.RoleAdmin); err != nil {
		return nil, translate(err, "customer")
	}

	customer.Role = models.RoleAdmin
	customer.PasswordHash = &hash

	s.logger.Info("Admin account ready", "customerID", customer.ID)
	return customer, nil
}

func (s *AuthService) session(customer *models.Customer) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(customer)
	if err != nil {
		return nil, err
	}

	return &Session{Token: token, ExpiresAt: expiresAt, Customer: customer}, nil
}

package service

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/internal/repository"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
)

// numberAttempts bounds how often a colliding order or commission number is regenerated
const numberAttempts = 3

// errNumberTaken marks a transaction that lost its reference number to another row
var errNumberTaken = errors.New("reference number already taken")

// retryNumber reruns create while it fails on a reference number collision
func retryNumber(create func() error) error {
	var err error
	for i := 0; i < numberAttempts; i++ {
		if err = create(); !errors.Is(err, errNumberTaken) {
			return err
		}
	}
	return err
}

// translate maps repository failures onto the application error taxonomy
func translate(err error, resource string) error {
	if err == nil {
		return nil
	}

	if _, ok := apperrors.As(err); ok {
		return err
	}

	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFoundError(resource + " not found")
	}

	return fmt.Errorf("%s: %w", resource, err)
}

// validID rejects identifiers that could never match a row
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validateCustomerDetails(details models.CustomerDetails) error {
	if strings.TrimSpace(details.Email) == "" {
		return apperrors.NewValidationError("email is required")
	}

	if _, err := mail.ParseAddress(details.Email); err != nil {
		return apperrors.NewValidationError("email is invalid")
	}

	if strings.TrimSpace(details.FirstName) == "" || strings.TrimSpace(details.LastName) == "" {
		return apperrors.NewValidationError("first and last name are required")
	}

	return nil
}

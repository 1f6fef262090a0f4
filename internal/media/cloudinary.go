package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/vaidashi/gallery-api/pkg/circuitbreaker"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// UploadedImage is where a stored image can be fetched from
type UploadedImage struct {
	URL      string
	PublicID string
}

// ImageHost stores uploaded images and returns their public URLs
type ImageHost interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*UploadedImage, error)
}

// Uploader is the part of the Cloudinary client the host calls
type Uploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// CloudinaryHost uploads images to Cloudinary
type CloudinaryHost struct {
	uploader Uploader
	folder   string
	breaker  *circuitbreaker.CircuitBreaker
	logger   logger.Logger
}

// NewCloudinaryHost connects using a cloudinary:// URL
func NewCloudinaryHost(cloudinaryURL, folder string, logger logger.Logger) (*CloudinaryHost, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)

	if err != nil {
		return nil, fmt.Errorf("failed to configure cloudinary: %w", err)
	}

	return NewHost(&cld.Upload, folder, logger), nil
}

// NewHost builds a host around any uploader
func NewHost(u Uploader, folder string, logger logger.Logger) *CloudinaryHost {
	return &CloudinaryHost{
		uploader: u,
		folder:   folder,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "cloudinary",
			FailureThreshold: 5,
			ResetTimeout:     time.Minute,
		}),
		logger: logger,
	}
}

// Breaker exposes the host's circuit breaker for health reporting
func (h *CloudinaryHost) Breaker() *circuitbreaker.CircuitBreaker {
	return h.breaker
}

// Upload stores one image under the configured folder
func (h *CloudinaryHost) Upload(ctx context.Context, filename string, r io.Reader) (*UploadedImage, error) {
	var result *uploader.UploadResult

	err := h.breaker.Execute(func() error {
		var err error
		result, err = h.uploader.Upload(ctx, r, uploader.UploadParams{
			Folder:       h.folder,
			ResourceType: "image",
		})
		if err != nil {
			return err
		}
		if result.Error.Message != "" {
			return fmt.Errorf("cloudinary: %s", result.Error.Message)
		}
		return nil
	}, nil)

	if err != nil {
		h.logger.Error("Failed to upload image", "error", err, "filename", filename)
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}

	return &UploadedImage{URL: result.SecureURL, PublicID: result.PublicID}, nil
}

// ErrNotConfigured is returned by DisabledHost
var ErrNotConfigured = errors.New("image host is not configured")

// DisabledHost rejects every upload; used when no Cloudinary URL is set
type DisabledHost struct{}

// Upload always fails with ErrNotConfigured
func (DisabledHost) Upload(context.Context, string, io.Reader) (*UploadedImage, error) {
	return nil, ErrNotConfigured
}

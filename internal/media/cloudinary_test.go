package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

type fakeUploader struct {
	params uploader.UploadParams
	body   string
	result *uploader.UploadResult
	err    error
}

func (f *fakeUploader) Upload(_ context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	f.params = params
	if r, ok := file.(io.Reader); ok {
		b, _ := io.ReadAll(r)
		f.body = string(b)
	}
	return f.result, f.err
}

func TestUpload_ReturnsSecureURL(t *testing.T) {
	u := &fakeUploader{result: &uploader.UploadResult{SecureURL: "https://res.cloudinary.com/x/ref.jpg", PublicID: "gallery/ref"}}
	h := NewHost(u, "gallery/commissions", logger.NewNop())

	img, err := h.Upload(context.Background(), "ref.jpg", strings.NewReader("jpegbytes"))
	require.NoError(t, err)

	assert.Equal(t, "https://res.cloudinary.com/x/ref.jpg", img.URL)
	assert.Equal(t, "gallery/ref", img.PublicID)
	assert.Equal(t, "gallery/commissions", u.params.Folder)
	assert.Equal(t, "jpegbytes", u.body)
}

func TestUpload_SurfacesAPIErrors(t *testing.T) {
	u := &fakeUploader{result: &uploader.UploadResult{Error: api.ErrorResp{Message: "Invalid image file"}}}
	h := NewHost(u, "f", logger.NewNop())

	_, err := h.Upload(context.Background(), "bad.txt", strings.NewReader("x"))
	assert.ErrorContains(t, err, "Invalid image file")
}

func TestUpload_TransportError(t *testing.T) {
	h := NewHost(&fakeUploader{err: errors.New("connection reset")}, "f", logger.NewNop())

	_, err := h.Upload(context.Background(), "a.jpg", strings.NewReader("x"))
	assert.ErrorContains(t, err, "connection reset")
}

func TestDisabledHost(t *testing.T) {
	var host ImageHost = DisabledHost{}

	img, err := host.Upload(context.Background(), "a.jpg", strings.NewReader("x"))

	assert.Nil(t, img)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

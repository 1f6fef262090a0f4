package api

import (
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/vaidashi/gallery-api/internal/auth"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/internal/service"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
)

const maxUploadBytes = 32 << 20

type updateCommissionStatusRequest struct {
	Status     string           `json:"status"`
	FinalPrice *decimal.Decimal `json:"finalPrice"`
	Note       string           `json:"note"`
}

// createCommissionHandler accepts a multipart commission request with reference images
func (s *Server) createCommissionHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := service.CreateCommissionInput{
		Identity: auth.FromContext(r.Context()),
		Customer: models.CustomerDetails{
			FirstName: r.FormValue("firstName"),
			LastName:  r.FormValue("lastName"),
			Email:     r.FormValue("email"),
			Phone:     r.FormValue("phone"),
		},
		Style:       r.FormValue("style"),
		Size:        r.FormValue("size"),
		Description: r.FormValue("description"),
	}

	if raw := r.FormValue("deadline"); raw != "" {
		deadline, err := parseDeadline(raw)
		if err != nil {
			s.respondWithError(w, http.StatusBadRequest, "deadline must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
			return
		}
		in.Deadline = &deadline
	}

	headers := append(r.MultipartForm.File["referenceImages"], r.MultipartForm.File["referenceImages[]"]...)
	if len(headers) > service.MaxReferenceImages {
		s.respondWithAppError(w, r, apperrors.NewValidationError("too many reference images"))
		return
	}

	files, closeAll, err := openAll(headers)
	defer closeAll()
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Could not read uploaded file")
		return
	}
	in.ReferenceFiles = files

	commission, err := s.deps.Commissions.CreateCommission(r.Context(), in)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: commission})
}

// myCommissionsHandler lists the caller's own commissions
func (s *Server) myCommissionsHandler(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)

	commissions, total, err := s.deps.Commissions.ListCustomerCommissions(r.Context(), auth.FromContext(r.Context()), page, limit)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	filter := models.CommissionFilter{Page: page, Limit: limit}
	filter.Normalize()
	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    PageResponse{Items: commissions, TotalCount: total, Page: filter.Page, Limit: filter.Limit},
	})
}

// listCommissionsHandler is the admin commission listing
func (s *Server) listCommissionsHandler(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)

	filter := models.CommissionFilter{
		Status:        models.CommissionStatus(r.URL.Query().Get("status")),
		CustomerEmail: r.URL.Query().Get("customerEmail"),
		Page:          page,
		Limit:         limit,
	}

	commissions, total, err := s.deps.Commissions.ListCommissions(r.Context(), filter)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	filter.Normalize()
	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    PageResponse{Items: commissions, TotalCount: total, Page: filter.Page, Limit: filter.Limit},
	})
}

func (s *Server) getCommissionHandler(w http.ResponseWriter, r *http.Request) {
	commission, err := s.deps.Commissions.GetCommission(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: commission})
}

func (s *Server) updateCommissionStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req updateCommissionStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	commission, err := s.deps.Commissions.UpdateStatus(r.Context(), mux.Vars(r)["id"], service.UpdateCommissionStatusInput{
		Status:     models.CommissionStatus(req.Status),
		FinalPrice: req.FinalPrice,
		Note:       req.Note,
	})
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: commission})
}

// addProgressImageHandler uploads one progress image with its description
func (s *Server) addProgressImageHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	image, err := s.deps.Commissions.AddProgressImage(r.Context(), mux.Vars(r)["id"],
		service.ImageFile{Filename: header.Filename, Content: file}, r.FormValue("description"))
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: image})
}

func parseDeadline(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func openAll(headers []*multipart.FileHeader) ([]service.ImageFile, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	files := make([]service.ImageFile, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, closeAll, err
		}
		opened = append(opened, f)
		files = append(files, service.ImageFile{Filename: h.Filename, Content: f})
	}

	return files, closeAll, nil
}

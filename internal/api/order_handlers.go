package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/vaidashi/gallery-api/internal/auth"
	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/internal/service"
)

type orderItemRef struct {
	ID string `json:"id"`
}

// createOrderRequest is the checkout body. Prices sent by the client are not read.
type createOrderRequest struct {
	FirstName       string         `json:"firstName"`
	LastName        string         `json:"lastName"`
	Email           string         `json:"email"`
	Phone           string         `json:"phone"`
	Items           []orderItemRef `json:"items"`
	ShippingAddress models.Address `json:"shippingAddress"`
}

type updateOrderStatusRequest struct {
	Status         *string `json:"status"`
	TrackingNumber *string `json:"trackingNumber"`
	InternalNotes  *string `json:"internalNotes"`
}

// createOrderHandler reserves the cart and creates an order
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ID)
	}

	order, err := s.deps.Orders.CreateOrder(r.Context(), service.CreateOrderInput{
		Identity: auth.FromContext(r.Context()),
		Customer: models.CustomerDetails{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Phone:     req.Phone,
		},
		ItemIDs:         ids,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: order})
}

// getOrdersHandler lists orders; non-admin callers only see their own
func (s *Server) getOrdersHandler(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)

	filter := models.OrderFilter{
		Status:        models.OrderStatus(r.URL.Query().Get("status")),
		CustomerEmail: r.URL.Query().Get("customerEmail"),
		Page:          page,
		Limit:         limit,
	}

	orders, total, err := s.deps.Orders.ListOrders(r.Context(), filter, auth.FromContext(r.Context()))
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	filter.Normalize()
	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    PageResponse{Items: orders, TotalCount: total, Page: filter.Page, Limit: filter.Limit},
	})
}

// getOrderByIDHandler returns an order by ID
func (s *Server) getOrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.deps.Orders.GetOrder(r.Context(), mux.Vars(r)["id"], auth.FromContext(r.Context()))
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// updateOrderStatusHandler applies an admin update to status, tracking number or notes
func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req updateOrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	in := service.UpdateOrderStatusInput{
		TrackingNumber: req.TrackingNumber,
		InternalNotes:  req.InternalNotes,
	}
	if req.Status != nil {
		status := models.OrderStatus(*req.Status)
		in.Status = &status
	}

	order, err := s.deps.Orders.UpdateOrderStatus(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/vaidashi/support-portal/internal/engine"
	"github.com/vaidashi/support-portal/internal/models"
	"github.com/vaidashi/support-portal/internal/service"
	apperrors "github.com/vaidashi/support-portal/pkg/errors"
)

const maxBodyBytes = 1 << 20

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OrderView is an order decorated with its derived labels
type OrderView struct {
	*models.Order
	Status      string `json:"status"`
	Fulfillment string `json:"fulfillment"`
	IsFulfilled bool   `json:"is_fulfilled"`
}

func newOrderView(o *models.Order) OrderView {
	return OrderView{
		Order:       o,
		Status:      engine.ResolveStatus(o.Stages),
		Fulfillment: engine.FulfillmentLabel(o.Stages),
		IsFulfilled: engine.IsFulfilled(o.Stages),
	}
}

func newOrderViews(orders []*models.Order) []OrderView {
	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, newOrderView(o))
	}
	return views
}

// Health represents the health check response
type Health struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp string                 `json:"timestamp"`
	Store     string                 `json:"store"`
	Broker    map[string]interface{} `json:"broker,omitempty"`
}

// healthCheckHandler handles the health check endpoint
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:    "ok",
		Version:   Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Store:     "ok",
	}

	code := http.StatusOK

	if err := s.orders.Ping(r.Context()); err != nil {
		s.logger.Warn("Health check failed", "error", err)
		health.Status = "degraded"
		health.Store = "unavailable"
		code = http.StatusServiceUnavailable
	}

	if s.breaker != nil {
		health.Broker = s.breaker.Metrics()
	}

	s.respondWithJSON(w, code, ApiResponse{
		Success: code == http.StatusOK,
		Data:    health,
	})
}

// getOrdersHandler returns the orders of one dashboard category
func (s *Server) getOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orders.ListOrders(r.Context(), r.URL.Query().Get("category"))

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    newOrderViews(orders),
	})
}

// getCountsHandler returns the dashboard counters
func (s *Server) getCountsHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := s.orders.Counts(r.Context())

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: counts})
}

// createOrderHandler creates a new order
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req service.CreateOrderRequest

	if !s.decode(w, r, &req) {
		return
	}

	order, err := s.orders.CreateOrder(r.Context(), req)

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{
		Success: true,
		Data:    newOrderView(order),
	})
}

// getOrderByIDHandler returns an order by ID
func (s *Server) getOrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.GetOrder(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    newOrderView(order),
	})
}

// updateOrderHandler merges the supplied fields into an order
func (s *Server) updateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var patch models.OrderPatch

	if !s.decode(w, r, &patch) {
		return
	}

	s.respondWithOrder(w, func() (*models.Order, error) {
		return s.orders.UpdateOrder(r.Context(), mux.Vars(r)["id"], patch)
	})
}

// setStageHandler sets a single pipeline flag
func (s *Server) setStageHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value *bool `json:"value"`
	}

	if !s.decode(w, r, &body) {
		return
	}

	if body.Value == nil {
		s.respondWithAppError(w, apperrors.NewValidationError("value", "is required"))
		return
	}

	vars := mux.Vars(r)

	s.respondWithOrder(w, func() (*models.Order, error) {
		return s.orders.SetStage(r.Context(), vars["id"], vars["stage"], *body.Value)
	})
}

// setReminderHandler replaces the custom reminder of an order
func (s *Server) setReminderHandler(w http.ResponseWriter, r *http.Request) {
	var reminder models.CustomReminder

	if !s.decode(w, r, &reminder) {
		return
	}

	s.respondWithOrder(w, func() (*models.Order, error) {
		return s.orders.SetReminder(r.Context(), mux.Vars(r)["id"], reminder)
	})
}

// archiveOrderHandler hides an order
func (s *Server) archiveOrderHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.orders.ArchiveOrder(r.Context(), id); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]string{"id": id, "status": "archived"},
	})
}

// deleteOrderHandler deletes an order permanently
func (s *Server) deleteOrderHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.orders.DeleteOrder(r.Context(), id); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]string{"id": id, "status": "deleted"},
	})
}

// bulkArchiveHandler archives every selected order or none of them
func (s *Server) bulkArchiveHandler(w http.ResponseWriter, r *http.Request) {
	s.handleBulk(w, r, s.orders.BulkArchive)
}

// bulkDeleteHandler deletes every selected order or none of them
func (s *Server) bulkDeleteHandler(w http.ResponseWriter, r *http.Request) {
	s.handleBulk(w, r, s.orders.BulkDelete)
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, req service.BulkRequest) (service.BulkResult, error)) {
	req, err := decodeBulkRequest(r)

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if category := r.URL.Query().Get("category"); category != "" && req.Category == "" {
		req.Category = category
	}

	result, err := op(r.Context(), req)

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result})
}

// getRemindersHandler returns the stale order alerts
func (s *Server) getRemindersHandler(w http.ResponseWriter, r *http.Request) {
	reminders, err := s.orders.ListReminders(r.Context())

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: reminders})
}

// ReportView is the analytics report with decorated orders
type ReportView struct {
	engine.Report
	Label  string      `json:"label"`
	Orders []OrderView `json:"orders"`
}

// getAnalyticsHandler returns the month-over-month report
func (s *Server) getAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	period, err := s.periodFromQuery(r)

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	report, err := s.orders.Analytics(r.Context(), period)

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: ReportView{
			Report: report,
			Label:  report.Period.String(),
			Orders: newOrderViews(report.Orders),
		},
	})
}

// getPipelineHandler returns the stages in forward order
func (s *Server) getPipelineHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: engine.Pipeline()})
}

// periodFromQuery reads month and year, defaulting each to the current period
func (s *Server) periodFromQuery(r *http.Request) (engine.Period, error) {
	current := s.orders.CurrentPeriod()
	month, year := int(current.Month), current.Year
	q := r.URL.Query()

	if raw := q.Get("month"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return engine.Period{}, apperrors.NewValidationError("month", "must be a number")
		}
		month = v
	}

	if raw := q.Get("year"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return engine.Period{}, apperrors.NewValidationError("year", "must be a number")
		}
		year = v
	}

	return engine.NewPeriod(month, year)
}

// decodeBulkRequest accepts {"ids":[...],"category":"..."} or a bare id array
func decodeBulkRequest(r *http.Request) (service.BulkRequest, error) {
	var req service.BulkRequest

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))

	if err != nil {
		return req, err
	}

	raw = bytes.TrimSpace(raw)

	if len(raw) > 0 && raw[0] == '[' {
		err = json.Unmarshal(raw, &req.IDs)
		return req, err
	}

	err = json.Unmarshal(raw, &req)
	return req, err
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))

	if err := decoder.Decode(v); err != nil {
		s.logger.Debug("Invalid request payload", "path", r.URL.Path, "error", err)
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}

	return true
}

func (s *Server) respondWithOrder(w http.ResponseWriter, fn func() (*models.Order, error)) {
	order, err := fn()

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    newOrderView(order),
	})
}

// respondWithAppError maps an error to its status code and envelope
func (s *Server) respondWithAppError(w http.ResponseWriter, err error) {
	code := apperrors.StatusCode(err)

	var bulkErr *apperrors.BulkOperationError

	switch {
	case errors.As(err, &bulkErr):
		s.respondWithJSON(w, code, ApiResponse{
			Success: false,
			Error:   err.Error(),
			Data:    map[string]interface{}{"failed_ids": bulkErr.FailedIDs},
		})
	case code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable:
		s.logger.Error("Request failed", "error", err)
		s.respondWithError(w, code, apperrors.ErrInternal.Error())
	default:
		s.respondWithError(w, code, err.Error())
	}
}

// respondWithError sends a JSON response with an error message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, ApiResponse{
		Success: false,
		Error:   message,
	})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)

	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

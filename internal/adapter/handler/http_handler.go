package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/chickflow/allocator/internal/core/domain"
	"github.com/chickflow/allocator/internal/core/service"
	"github.com/chickflow/allocator/internal/port"
)

const dispatchTimeout = 10 * time.Second

type HTTPHandler struct {
	engine   *service.AllocationEngine
	notifier port.Notifier
	logger   *slog.Logger
}

func NewHTTPHandler(engine *service.AllocationEngine, notifier port.Notifier, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{engine: engine, notifier: notifier, logger: logger}
}

// Register wires all routes onto the mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/allocations/run", h.RunAllocation)
	mux.HandleFunc("/api/waitlist/fulfill", h.FulfillWaitlist)
	mux.HandleFunc("/api/orders", h.CreateOrder)
	mux.HandleFunc("/api/supply", h.RecordSupply)
}

type dateRequest struct {
	Date string `json:"date"`
}

type orderSummary struct {
	OrderNumber   string  `json:"order_number"`
	CustomerID    string  `json:"customer_id"`
	RequestedQty  int     `json:"requested_qty"`
	AllocatedQty  int     `json:"allocated_qty"`
	PriorityScore float64 `json:"priority_score"`
}

type runResponse struct {
	Date        string         `json:"date"`
	TotalOrders int            `json:"total_orders"`
	Allocated   []orderSummary `json:"allocated"`
	Waitlisted  []orderSummary `json:"waitlisted"`
	Remaining   int            `json:"remaining"`
}

type fulfillResponse struct {
	Date              string `json:"date"`
	Fulfilled         int    `json:"fulfilled"`
	RemainingWaitlist int    `json:"remaining_waitlist"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) RunAllocation(w http.ResponseWriter, r *http.Request) {
	date, ok := h.decodeDate(w, r)
	if !ok {
		return
	}

	summary, err := h.engine.AllocateForDate(r.Context(), date)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.dispatch(summary.Intents)

	writeJSON(w, http.StatusOK, runResponse{
		Date:        summary.Date.Format(time.DateOnly),
		TotalOrders: summary.TotalOrders,
		Allocated:   toSummaries(summary.Allocated),
		Waitlisted:  toSummaries(summary.Waitlisted),
		Remaining:   summary.Remaining,
	})
}

func (h *HTTPHandler) FulfillWaitlist(w http.ResponseWriter, r *http.Request) {
	date, ok := h.decodeDate(w, r)
	if !ok {
		return
	}

	summary, err := h.engine.FulfillWaitlist(r.Context(), date)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.dispatch(summary.Intents)

	writeJSON(w, http.StatusOK, fulfillResponse{
		Date:              summary.Date.Format(time.DateOnly),
		Fulfilled:         summary.Fulfilled,
		RemainingWaitlist: summary.StillWaiting,
	})
}

type createOrderRequest struct {
	CustomerID    string `json:"customer_id"`
	Quantity      int    `json:"quantity"`
	RequestedDate string `json:"requested_date"`
	PriorityLevel int    `json:"priority_level"`
	Notes         string `json:"notes"`
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	requested, err := time.Parse(time.DateOnly, req.RequestedDate)
	if req.CustomerID == "" || req.Quantity <= 0 || err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing or invalid required fields"})
		return
	}

	order, intents, err := h.engine.SubmitOrder(r.Context(), req.CustomerID, req.Quantity, requested, req.PriorityLevel, req.Notes)
	if err != nil {
		if errors.Is(err, service.ErrUnknownCustomer) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "customer not found"})
			return
		}
		h.logger.Error("order submission failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	h.dispatch(intents)

	writeJSON(w, http.StatusCreated, map[string]string{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"status":       string(order.Status),
	})
}

type recordSupplyRequest struct {
	Date     string `json:"date"`
	Expected int    `json:"expected"`
	Actual   *int   `json:"actual,omitempty"`
	Notes    string `json:"notes"`
}

func (h *HTTPHandler) RecordSupply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req recordSupplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil || req.Expected < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing or invalid required fields"})
		return
	}

	supply, err := h.engine.RecordSupply(r.Context(), date, req.Expected, req.Actual, req.Notes)
	if err != nil {
		h.logger.Error("supply intake failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"date":      supply.Date.Format(time.DateOnly),
		"available": supply.Available(),
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) decodeDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return time.Time{}, false
	}

	var req dateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return time.Time{}, false
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}

func (h *HTTPHandler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoSupplyForDate):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("engine run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// dispatch pushes intents to the notifier with its own deadline. The HTTP
// response never waits on or fails over notification delivery.
func (h *HTTPHandler) dispatch(intents []domain.NotificationIntent) {
	if len(intents) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	if err := h.notifier.Dispatch(ctx, intents); err != nil {
		h.logger.Error("notification dispatch failed", "intents", len(intents), "error", err)
	}
}

func toSummaries(orders []domain.Order) []orderSummary {
	out := make([]orderSummary, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderSummary{
			OrderNumber:   o.OrderNumber,
			CustomerID:    o.CustomerID,
			RequestedQty:  o.Quantity,
			AllocatedQty:  o.AllocatedQty,
			PriorityScore: o.PriorityScore,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

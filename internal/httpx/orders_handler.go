package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/shanthaneddula/zsmokeshop-sub000/internal/audit"
	kafkax "github.com/shanthaneddula/zsmokeshop-sub000/internal/kafka"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/orders"
)

// Publisher is what the handler needs from a kafka producer; tests swap in a
// capture.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type OrdersHandler struct {
	Store           *orders.Store
	ProducerCreated Publisher // pickup.order.created; nil disables
	ProducerStatus  Publisher // pickup.order.status_changed; nil disables
	Audit           *audit.Log
	Service         string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/stats", h.orderStats)
	r.Get("/orders/number/{number}", h.getOrderByNumber)
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}", h.updateOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/communications", h.addCommunication)
	r.Delete("/orders/{id}", h.deleteOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	var inv *orders.InvalidTransitionError
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.As(err, &inv):
		writeJSON(w, http.StatusConflict, map[string]string{"error": inv.Error()})
	case errors.Is(err, orders.ErrInvalidDraft):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var draft orders.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Store.CreateOrder(ctx, draft)
	if err != nil {
		writeErr(w, err)
		return
	}

	h.publish(h.ProducerCreated, o.ID, orders.EventOrderCreated, orders.OrderCreatedPayload{
		OrderID:    o.ID,
		Number:     o.Number,
		Location:   o.Location,
		Phone:      o.Customer.Phone,
		TotalCents: o.TotalCents,
	})
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Store.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if o == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseInt(chi.URLParam(r, "number"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order number"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Store.GetOrderByNumber(ctx, n)
	if err != nil {
		writeErr(w, err)
		return
	}
	if o == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f orders.Filters
	for _, s := range strings.Split(q.Get("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			f.Statuses = append(f.Statuses, orders.Status(s))
		}
	}
	f.Location = orders.Location(q.Get("location"))
	f.Search = q.Get("search")
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.PlacedAfter = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.PlacedBefore = t
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Store.ListOrders(ctx, f)
	if err != nil {
		writeErr(w, err)
		return
	}

	// summary=1 returns the board projection instead of full documents
	if q.Get("summary") == "1" {
		now := time.Now()
		out := make([]orders.Summary, 0, len(list))
		for _, o := range list {
			out = append(out, orders.Summarize(o, now))
		}
		writeJSON(w, http.StatusOK, out)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	st, err := h.Store.OrderStats(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type updateStatusReq struct {
	Status    orders.Status `json:"status"`
	Note      string        `json:"note,omitempty"`
	ChangedBy string        `json:"changed_by,omitempty"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing status"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	prev, err := h.Store.GetOrder(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if prev == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	o, err := h.Store.UpdateOrderStatus(ctx, id, req.Status, req.Note)
	if err != nil {
		writeErr(w, err)
		return
	}

	changedBy := req.ChangedBy
	if changedBy == "" {
		changedBy = h.Service
	}
	h.Audit.Record(ctx, o, prev.Status, changedBy)
	h.publish(h.ProducerStatus, o.ID, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{
		OrderID:  o.ID,
		Number:   o.Number,
		From:     prev.Status,
		To:       o.Status,
		Phone:    o.Customer.Phone,
		Location: o.Location,
	})
	writeJSON(w, http.StatusOK, o)
}

type updateOrderReq struct {
	StoreNotes *string          `json:"store_notes,omitempty"`
	Location   *orders.Location `json:"location,omitempty"`
	Customer   *orders.Customer `json:"customer,omitempty"`
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Store.UpdateOrder(ctx, chi.URLParam(r, "id"), orders.Patch{
		StoreNotes: req.StoreNotes,
		Location:   req.Location,
		Customer:   req.Customer,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type addCommunicationReq struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
	SentBy  string `json:"sent_by,omitempty"`
}

func (h *OrdersHandler) addCommunication(w http.ResponseWriter, r *http.Request) {
	var req addCommunicationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Channel == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Store.AppendCommunication(ctx, chi.URLParam(r, "id"), orders.CommunicationEvent{
		Channel: req.Channel,
		Message: req.Message,
		SentBy:  req.SentBy,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.DeleteOrder(ctx, chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) publish(p Publisher, orderID, eventType string, payload any) {
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

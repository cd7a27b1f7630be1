package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/order"
)

// Money values are serialized as decimal strings (shopspring marshaling), so
// clients never see binary-float artifacts.

type orderLineDTO struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type createOrderRequest struct {
	CustomerID int64          `json:"customerId"`
	Lines      []orderLineDTO `json:"lines"`
}

type createOrderResponse struct {
	OrderID int64 `json:"orderId"`
}

type orderItemDTO struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type orderDTO struct {
	ID          int64           `json:"id"`
	CustomerID  int64           `json:"customerId"`
	OrderDate   time.Time       `json:"orderDate"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      string          `json:"status"`
	Items       []orderItemDTO  `json:"items,omitempty"`
}

// CreateOrder handles POST /api/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lines := make([]order.Line, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = order.Line{ProductID: l.ProductID, Quantity: l.Quantity}
	}

	id, err := h.orders.CreateOrder(r.Context(), req.CustomerID, lines)
	if err != nil {
		mapDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{OrderID: id})
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	o, err := h.orderRepo.GetByID(r.Context(), id)
	if err != nil {
		mapDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

type orderTotalResponse struct {
	OrderID int64           `json:"orderId"`
	Total   decimal.Decimal `json:"total"`
}

// GetOrderTotal handles GET /api/orders/{id}/total. A missing or empty order
// reports a zero total rather than 404; the calculator's contract is
// deliberately lenient.
func (h *Handler) GetOrderTotal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	total, err := h.orders.CalculateOrderTotal(r.Context(), id)
	if err != nil {
		mapDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, orderTotalResponse{OrderID: id, Total: total})
}

type sweepResponse struct {
	Processed int `json:"processed"`
}

// SweepOrders handles POST /api/orders/sweep, running the daily processing
// sweep over all pending orders.
func (h *Handler) SweepOrders(w http.ResponseWriter, r *http.Request) {
	n, err := h.orders.ProcessPendingOrders(r.Context())
	if err != nil {
		mapDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sweepResponse{Processed: n})
}

// ListCustomerOrders handles GET /api/customers/{id}/orders.
func (h *Handler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	list, err := h.orderRepo.ListByCustomer(r.Context(), id)
	if err != nil {
		mapDomainError(w, r, err)
		return
	}

	out := make([]orderDTO, len(list))
	for i := range list {
		out[i] = toOrderDTO(&list[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func toOrderDTO(o *order.Order) orderDTO {
	dto := orderDTO{
		ID:          o.ID,
		CustomerID:  o.CustomerID,
		OrderDate:   o.OrderDate,
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
	}
	for _, item := range o.Items {
		dto.Items = append(dto.Items, orderItemDTO{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return dto
}

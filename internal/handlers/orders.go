package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/ukisoft/ownplate/internal/domain"
	"github.com/ukisoft/ownplate/internal/platform/auth"
	"github.com/ukisoft/ownplate/internal/platform/httpx"
	"github.com/ukisoft/ownplate/internal/platform/requestctx"
	"github.com/ukisoft/ownplate/internal/services"
)

// OrderHandlers exposes the order lifecycle operations.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	payments    services.PaymentService
	idempotency func(http.Handler) http.Handler
	limiter     *callerLimiter
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithIdempotency installs a replay middleware on the mutating order routes.
func WithIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// WithCallerRateLimit caps validate and place calls per caller within window.
func WithCallerRateLimit(limit int, window time.Duration, clock func() time.Time) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = newCallerLimiter(limit, window, clock)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:    authn,
		orders:   orders,
		payments: payments,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the order operations. The router is already scoped to one order.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Use(tagOrderContext)
	if h.idempotency != nil {
		r.Use(h.idempotency)
	}

	r.Group(func(customer chi.Router) {
		customer.Use(h.limiter.middleware)
		customer.Post("/validate", h.validateOrder)
		customer.Post("/place", h.placeOrder)
	})
	r.Post("/cancel", h.cancelOrder)
	r.Group(func(admin chi.Router) {
		admin.Use(auth.RequireAdmin())
		admin.Post("/status", h.updateOrderStatus)
		admin.Post("/capture", h.capturePayment)
	})
}

// tagOrderContext attaches the order reference to the request context and logger.
func tagOrderContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := requestctx.OrderRef{
			RestaurantID: strings.TrimSpace(chi.URLParam(r, "restaurantID")),
			OrderID:      strings.TrimSpace(chi.URLParam(r, "orderID")),
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithOrder(r.Context(), ref)))
	})
}

type placeOrderRequest struct {
	Tip          float64    `json:"tip"`
	SendSMS      bool       `json:"send_sms"`
	TimeToPickup *time.Time `json:"time_to_pickup"`
	Memo         string     `json:"memo"`
}

type updateStatusRequest struct {
	// Status accepts either the numeric code or the status name.
	Status        json.RawMessage `json:"status"`
	TimeEstimated *time.Time      `json:"time_estimated"`
	Timezone      string          `json:"timezone"`
}

func (h *OrderHandlers) validateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	ref, _ := requestctx.Order(ctx)
	result, err := h.orders.Validate(ctx, services.ValidateOrderCommand{
		RestaurantID: ref.RestaurantID,
		OrderID:      ref.OrderID,
		CallerUID:    auth.CallerUID(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	payload := validationResponse{Order: buildOrderPayload(result.Order), Result: true}
	if result.Failure != nil {
		payload.Result = false
		payload.Failure = failureCode(result.Failure)
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req placeOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid-argument", "invalid JSON body", http.StatusBadRequest))
		return
	}
	ref, _ := requestctx.Order(ctx)
	order, err := h.orders.Place(ctx, services.PlaceOrderCommand{
		RestaurantID: ref.RestaurantID,
		OrderID:      ref.OrderID,
		CallerUID:    auth.CallerUID(ctx),
		Tip:          req.Tip,
		SendSMS:      req.SendSMS,
		TimeToPickup: req.TimeToPickup,
		Memo:         req.Memo,
		Locale:       requestLocale(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid-argument", "invalid JSON body", http.StatusBadRequest))
		return
	}
	status, ok := parseStatusField(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid-argument", "status must be a known order status", http.StatusBadRequest))
		return
	}
	ref, _ := requestctx.Order(ctx)
	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		RestaurantID:  ref.RestaurantID,
		OrderID:       ref.OrderID,
		CallerUID:     auth.CallerUID(ctx),
		Status:        status,
		TimeEstimated: req.TimeEstimated,
		Timezone:      req.Timezone,
		Locale:        requestLocale(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) capturePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	ref, _ := requestctx.Order(ctx)
	order, err := h.payments.Capture(ctx, services.CapturePaymentCommand{
		RestaurantID: ref.RestaurantID,
		OrderID:      ref.OrderID,
		CallerUID:    auth.CallerUID(ctx),
		Locale:       requestLocale(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	ref, _ := requestctx.Order(ctx)
	order, err := h.payments.Cancel(ctx, services.CancelPaymentCommand{
		RestaurantID: ref.RestaurantID,
		OrderID:      ref.OrderID,
		CallerUID:    auth.CallerUID(ctx),
		Locale:       requestLocale(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func parseStatusField(raw json.RawMessage) (domain.OrderStatus, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var code int
	if err := json.Unmarshal(raw, &code); err == nil {
		return domain.ParseOrderStatus(strconv.Itoa(code))
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return domain.ParseOrderStatus(name)
	}
	return 0, false
}

// requestLocale prefers the locale claim of the token over Accept-Language.
func requestLocale(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.Locale != "" {
		return identity.Locale
	}
	return r.Header.Get("Accept-Language")
}

func failureCode(err error) string {
	switch {
	case errors.Is(err, services.ErrUnknownMenuItem):
		return "unknown_menu_item"
	case errors.Is(err, services.ErrInvalidQuantity):
		return "invalid_quantity"
	default:
		return "invalid_order"
	}
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type validationResponse struct {
	Order   orderPayload `json:"order"`
	Result  bool         `json:"result"`
	Failure string       `json:"failure,omitempty"`
}

type orderPayload struct {
	ID            string                      `json:"id"`
	RestaurantID  string                      `json:"restaurant_id"`
	UID           string                      `json:"uid"`
	Status        int                         `json:"status"`
	StatusName    string                      `json:"status_name"`
	Number        int64                       `json:"number"`
	Items         map[string][]float64        `json:"items,omitempty"`
	Options       map[string][][]int          `json:"options,omitempty"`
	MenuItems     map[string]orderMenuPayload `json:"menu_items,omitempty"`
	Prices        map[string][]float64        `json:"prices,omitempty"`
	SubTotal      float64                     `json:"sub_total"`
	Tax           float64                     `json:"tax"`
	InclusiveTax  bool                        `json:"inclusive_tax"`
	Total         float64                     `json:"total"`
	Tip           float64                     `json:"tip"`
	TotalCharge   float64                     `json:"total_charge"`
	Accounting    *accountingPayload          `json:"accounting,omitempty"`
	Payment       string                      `json:"payment,omitempty"`
	SendSMS       bool                        `json:"send_sms"`
	Memo          string                      `json:"memo,omitempty"`
	TimePlaced    string                      `json:"time_placed,omitempty"`
	TimeEstimated string                      `json:"time_estimated,omitempty"`
	TimeConfirmed string                      `json:"time_confirmed,omitempty"`
	PlacedAt      string                      `json:"placed_at,omitempty"`
	AcceptedAt    string                      `json:"accepted_at,omitempty"`
	ReadyAt       string                      `json:"ready_at,omitempty"`
	CompletedAt   string                      `json:"completed_at,omitempty"`
	CanceledAt    string                      `json:"canceled_at,omitempty"`
	UpdatedAt     string                      `json:"updated_at,omitempty"`
}

type orderMenuPayload struct {
	Price     float64 `json:"price"`
	ItemName  string  `json:"item_name"`
	ItemPhoto string  `json:"item_photo,omitempty"`
	Category1 string  `json:"category1,omitempty"`
	Category2 string  `json:"category2,omitempty"`
}

type categoryPayload struct {
	Revenue float64 `json:"revenue"`
	Tax     float64 `json:"tax"`
}

type accountingPayload struct {
	Food    categoryPayload `json:"food"`
	Alcohol categoryPayload `json:"alcohol"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		RestaurantID:  order.RestaurantID,
		UID:           order.UID,
		Status:        int(order.Status),
		StatusName:    order.Status.String(),
		Number:        order.Number,
		Items:         order.Items,
		Options:       order.RawOptions,
		Prices:        order.Prices,
		SubTotal:      order.SubTotal,
		Tax:           order.Tax,
		InclusiveTax:  order.InclusiveTax,
		Total:         order.Total,
		Tip:           order.Tip,
		TotalCharge:   order.TotalCharge,
		Payment:       string(order.Payment.Stripe),
		SendSMS:       order.SendSMS,
		Memo:          order.Memo,
		TimePlaced:    formatTime(order.TimePlaced),
		TimeEstimated: formatTime(order.TimeEstimated),
		TimeConfirmed: formatTime(order.TimeConfirmed),
		PlacedAt:      formatTime(order.OrderPlacedAt),
		AcceptedAt:    formatTime(order.OrderAcceptedAt),
		ReadyAt:       formatTime(order.ReadyToPickupAt),
		CompletedAt:   formatTime(order.OrderCompletedAt),
		CanceledAt:    formatTime(order.OrderCanceledAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
	if len(order.MenuItems) > 0 {
		payload.MenuItems = make(map[string]orderMenuPayload, len(order.MenuItems))
		for id, item := range order.MenuItems {
			payload.MenuItems[id] = orderMenuPayload{
				Price:     item.Price,
				ItemName:  item.ItemName,
				ItemPhoto: item.ItemPhoto,
				Category1: item.Category1,
				Category2: item.Category2,
			}
		}
	}
	if order.Accounting != nil {
		payload.Accounting = &accountingPayload{
			Food:    categoryPayload{Revenue: order.Accounting.Food.Revenue, Tax: order.Accounting.Food.Tax},
			Alcohol: categoryPayload{Revenue: order.Accounting.Alcohol.Revenue, Tax: order.Accounting.Alcohol.Tax},
		}
	}
	return payload
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

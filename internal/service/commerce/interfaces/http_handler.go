// internal/service/commerce/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"mall/internal/pkg/alert"
	"mall/internal/pkg/lock"
	"mall/internal/service/commerce/application"
	"mall/internal/service/commerce/domain"
)

var tracer = otel.Tracer("commerce-http")

// Handler 暴露商城的 HTTP 接口。
type Handler struct {
	allocator *application.CouponAllocator
	issuer    *application.QueueingIssuer
	orders    *application.CreateOrderUseCase
	carts     *application.CartService
	products  *application.ProductQuery
	ledger    domain.Ledger
	hub       *alert.Hub
}

func NewHandler(
	allocator *application.CouponAllocator,
	issuer *application.QueueingIssuer,
	orders *application.CreateOrderUseCase,
	carts *application.CartService,
	products *application.ProductQuery,
	ledger domain.Ledger,
	hub *alert.Hub,
) *Handler {
	return &Handler{
		allocator: allocator,
		issuer:    issuer,
		orders:    orders,
		carts:     carts,
		products:  products,
		ledger:    ledger,
		hub:       hub,
	}
}

// RegisterRoutes 把全部路由挂到 mux 上。
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/coupons/{couponId}/issue", h.issueCoupon)
	mux.HandleFunc("POST /api/coupons/{couponId}/enqueue", h.enqueueCoupon)
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/top", h.topProducts)
	mux.HandleFunc("POST /api/cart/items", h.addCartItem)
	mux.HandleFunc("GET /api/cart", h.cartItems)
	mux.HandleFunc("DELETE /api/cart", h.clearCart)
	mux.HandleFunc("POST /api/orders", h.createOrder)
	mux.HandleFunc("GET /api/orders/{orderId}", h.getOrder)
	if h.hub != nil {
		mux.HandleFunc("/ws/alerts", h.hub.ServeWs)
	}
}

func (h *Handler) issueCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := tracer.Start(ctx, "http.IssueCoupon")
	defer span.End()

	couponID, err := strconv.ParseInt(r.PathValue("couponId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}
	var req struct {
		UserID int64 `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	uc, err := h.allocator.Allocate(ctx, req.UserID, couponID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"userCouponId": uc.ID,
		"couponId":     uc.CouponID,
		"issuedAt":     uc.IssuedAt,
	})
}

func (h *Handler) enqueueCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := tracer.Start(ctx, "http.EnqueueCoupon")
	defer span.End()

	couponID, err := strconv.ParseInt(r.PathValue("couponId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}
	var req struct {
		UserID int64 `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.issuer.Enqueue(ctx, req.UserID, couponID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) topProducts(w http.ResponseWriter, r *http.Request) {
	n := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		n = parsed
	}

	top, err := h.products.TopN(r.Context(), n)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(top))
	for _, t := range top {
		out = append(out, map[string]any{
			"productId":  t.Product.ID,
			"name":       t.Product.Name,
			"price":      t.Product.Price,
			"salesCount": t.SalesCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    int64 `json:"userId"`
		ProductID int64 `json:"productId"`
		Quantity  int64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	if err := h.carts.AddItem(r.Context(), req.UserID, req.ProductID, req.Quantity); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"added": true})
}

func (h *Handler) cartItems(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	items, err := h.carts.Items(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.carts.Clear(r.Context(), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := tracer.Start(ctx, "http.CreateOrder")
	defer span.End()

	var req struct {
		UserID       int64  `json:"userId"`
		UserCouponID *int64 `json:"userCouponId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.orders.CreateOrder(ctx, req.UserID, req.UserCouponID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse(order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(r.PathValue("orderId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	order, err := h.ledger.Orders().FindByID(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(order))
}

func orderResponse(o *domain.Order) map[string]any {
	return map[string]any{
		"orderId":        o.ID,
		"userId":         o.UserID,
		"userCouponId":   o.UserCouponID,
		"totalAmount":    o.TotalAmount,
		"discountAmount": o.DiscountAmount,
		"paidAmount":     o.UsedPoint,
		"status":         o.Status,
		"createdAt":      o.CreatedAt,
	}
}

// writeDomainError 把领域错误翻译成 HTTP 状态码：
// 标识不存在 404，业务冲突 409，锁等待超时 503（可重试），其余 500。
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lock.ErrLockUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Msg("请求处理失败")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("响应编码失败")
	}
}

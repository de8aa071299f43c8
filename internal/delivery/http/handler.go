package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pachory/backend/internal/entity"
	"github.com/pachory/backend/internal/payment"
	"github.com/pachory/backend/internal/repository"
	"github.com/pachory/backend/internal/service"
)

const maxEvidenceSize = 10 << 20 // 10 MiB multipart cap for refund evidence

// Handler exposes the storefront over HTTP.
type Handler struct {
	catalog   *service.CatalogService
	carts     *service.CartService
	orders    *service.OrderService
	refunds   *service.RefundService
	uploadDir string
}

func NewHandler(
	catalog *service.CatalogService,
	carts *service.CartService,
	orders *service.OrderService,
	refunds *service.RefundService,
	uploadDir string,
) *Handler {
	return &Handler{
		catalog:   catalog,
		carts:     carts,
		orders:    orders,
		refunds:   refunds,
		uploadDir: uploadDir,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.handleListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.handleGetProduct)
	mux.HandleFunc("POST /api/admin/products", h.handleCreateProduct)
	mux.HandleFunc("PUT /api/admin/products/{id}", h.handleUpdateProduct)
	mux.HandleFunc("DELETE /api/admin/products/{id}", h.handleDeleteProduct)

	mux.HandleFunc("GET /api/cart/{userID}", h.handleGetCart)
	mux.HandleFunc("POST /api/cart/{userID}/items", h.handleAddCartLine)
	mux.HandleFunc("PUT /api/cart/{userID}/items/{productID}", h.handleUpdateCartLine)
	mux.HandleFunc("DELETE /api/cart/{userID}/items/{productID}", h.handleRemoveCartLine)

	mux.HandleFunc("POST /api/orders", h.handleCreateOrder)
	mux.HandleFunc("POST /api/orders/verify", h.handleVerifyPayment)
	mux.HandleFunc("GET /api/orders", h.handleListUserOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.handleGetOrder)

	mux.HandleFunc("POST /api/refunds", h.handleCreateRefund)

	mux.HandleFunc("GET /api/admin/orders", h.handleAdminListOrders)
	mux.HandleFunc("PUT /api/admin/orders/{id}/status", h.handleAdminUpdateOrderStatus)
	mux.HandleFunc("GET /api/admin/refunds", h.handleAdminListRefunds)
	mux.HandleFunc("PUT /api/admin/refunds/{id}", h.handleAdminResolveRefund)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps pipeline errors to HTTP statuses.
func statusFor(err error) int {
	var stockErr *repository.InsufficientStockError
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &stockErr),
		errors.Is(err, service.ErrStateConflict),
		errors.Is(err, service.ErrDuplicateRefund),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// --- Products ---

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		slog.Error("Failed to list products", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

type productRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	ImageURL    string          `json:"image_url"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	product, err := h.catalog.Create(r.Context(), &entity.Product{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		SalePrice:   req.SalePrice,
		ImageURL:    req.ImageURL,
		Category:    req.Category,
		Stock:       req.Stock,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	product, err := h.catalog.Update(r.Context(), &entity.Product{
		ID:          r.PathValue("id"),
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		SalePrice:   req.SalePrice,
		ImageURL:    req.ImageURL,
		Category:    req.Category,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Cart ---

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.Get(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

type cartLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) handleAddCartLine(w http.ResponseWriter, r *http.Request) {
	var req cartLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.carts.AddLine(r.Context(), r.PathValue("userID"), req.ProductID, req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateCartLine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.carts.UpdateLine(r.Context(), r.PathValue("userID"), r.PathValue("productID"), req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveCartLine(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.RemoveLine(r.Context(), r.PathValue("userID"), r.PathValue("productID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Orders ---

type createOrderRequest struct {
	UserID      string            `json:"user_id"`
	CartID      string            `json:"cart_id"`
	Items       []cartLineRequest `json:"items"`
	Address     entity.Address    `json:"address"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	lines := make([]entity.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, entity.CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	result, err := h.orders.CreateOrder(r.Context(), service.CreateOrderInput{
		UserID:      req.UserID,
		CartID:      req.CartID,
		Lines:       lines,
		Address:     req.Address,
		TotalAmount: req.TotalAmount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type verifyPaymentRequest struct {
	OrderID   string `json:"order_id"`
	IntentID  string `json:"intent_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

func (h *Handler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.orders.ConfirmPayment(r.Context(), service.ConfirmPaymentInput{
		OrderID:   req.OrderID,
		IntentID:  req.IntentID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}

func (h *Handler) handleListUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListUserOrders(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// --- Refunds ---

// handleCreateRefund accepts a multipart form: order_id, user_id, reason and
// an optional evidence file, stored locally and referenced by name.
func (h *Handler) handleCreateRefund(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxEvidenceSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	evidence := ""
	file, header, err := r.FormFile("evidence")
	if err == nil {
		defer file.Close()
		evidence, err = h.saveEvidence(file, header.Filename)
		if err != nil {
			slog.Error("Failed to store refund evidence", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store evidence"})
			return
		}
	}

	req, err := h.refunds.Create(r.Context(), service.CreateRefundInput{
		OrderID:       r.FormValue("order_id"),
		UserID:        r.FormValue("user_id"),
		Reason:        r.FormValue("reason"),
		EvidenceImage: evidence,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) saveEvidence(file io.Reader, original string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	name := uuid.New().String() + filepath.Ext(original)
	dst, err := os.Create(filepath.Join(h.uploadDir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create evidence file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(file, maxEvidenceSize)); err != nil {
		return "", fmt.Errorf("failed to write evidence file: %w", err)
	}
	return name, nil
}

// --- Admin ---

func (h *Handler) handleAdminListOrders(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("stale_pending_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid stale_pending_minutes"})
			return
		}
		orders, err := h.orders.ListStalePending(r.Context(), time.Duration(minutes)*time.Minute)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orders)
		return
	}

	orders, err := h.orders.ListAllOrders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) handleAdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderStatus entity.OrderStatus `json:"order_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	order, err := h.orders.UpdateOrderStatus(r.Context(), r.PathValue("id"), req.OrderStatus)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleAdminListRefunds(w http.ResponseWriter, r *http.Request) {
	refunds, err := h.refunds.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refunds)
}

func (h *Handler) handleAdminResolveRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status entity.RefundStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	refund, err := h.refunds.Resolve(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refund)
}

// EnableCORS allows the storefront SPA to call the API from its own origin.
func EnableCORS(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

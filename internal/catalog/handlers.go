package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scoopstack/backend-scoopstack/internal/common"
	"github.com/scoopstack/backend-scoopstack/internal/obs"
)

// StockRenderer turns a stock snapshot into a downloadable report.
type StockRenderer interface {
	StockReport(shopName string, generatedAt time.Time, products []Product) ([]byte, error)
}

// Handler exposes REST endpoints for products, restocks, and stock reports.
type Handler struct {
	Service  *Service
	Renderer StockRenderer
	// ShopName resolves the report heading for an account. Optional.
	ShopName func(r *http.Request, userID string) string
}

type productRequest struct {
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Unit         string   `json:"unit"`
	Quantity     float64  `json:"quantity"`
	MinStock     *float64 `json:"minStock"`
	SellingPrice *float64 `json:"sellingPrice"`
	Price        *float64 `json:"price"`
}

type restockRequest struct {
	Items []RestockItem `json:"items"`
}

func (r productRequest) toInput() ProductInput {
	return ProductInput{
		Name:         r.Name,
		Category:     r.Category,
		Unit:         r.Unit,
		Quantity:     r.Quantity,
		MinStock:     r.MinStock,
		SellingPrice: r.SellingPrice,
		Price:        r.Price,
	}
}

// List handles GET /api/v1/products.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	params := ListParams{
		Query:        strings.TrimSpace(r.URL.Query().Get("q")),
		LowStockOnly: r.URL.Query().Get("lowStock") == "true",
	}
	products, err := h.Service.List(r.Context(), userID, params)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONItems(w, http.StatusOK, products)
}

// Create handles POST /api/v1/products.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	product, err := h.Service.Create(r.Context(), userID, req.toInput())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": product})
}

// Update handles PUT /api/v1/products/{productID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")
	if strings.TrimSpace(productID) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "product id is required", nil)
		return
	}
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	product, err := h.Service.Update(r.Context(), userID, productID, req.toInput())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}

// Delete handles DELETE /api/v1/products/{productID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")
	if strings.TrimSpace(productID) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "product id is required", nil)
		return
	}
	if err := h.Service.Delete(r.Context(), userID, productID); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Restock handles POST /api/v1/products/restock.
func (h *Handler) Restock(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	entry, err := h.Service.Restock(r.Context(), userID, req.Items)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": entry})
}

// History handles GET /api/v1/products/restock/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	entries, err := h.Service.History(r.Context(), userID, HistoryParams{
		Date:      strings.TrimSpace(q.Get("date")),
		Month:     strings.TrimSpace(q.Get("month")),
		ThisMonth: q.Get("thisMonth") == "true",
		SortAsc:   q.Get("sort") == "asc",
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONItems(w, http.StatusOK, entries)
}

// StockReport handles GET /api/v1/products/report and streams a PDF
// snapshot of current stock levels.
func (h *Handler) StockReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if h.Renderer == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "report renderer not configured", nil)
		return
	}
	products, err := h.Service.List(r.Context(), userID, ListParams{})
	if err != nil {
		common.WriteError(w, err)
		return
	}

	now := time.Now()
	shopName := ""
	if h.ShopName != nil {
		shopName = h.ShopName(r, userID)
	}
	data, err := h.Renderer.StockReport(shopName, now, products)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	obs.IncStockReport()

	filename := fmt.Sprintf("STOCK-%s.pdf", now.Format("02-01-2006-15-04"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return "", false
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return "", false
	}
	return userID, true
}

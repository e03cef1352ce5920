package billing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/scoopstack/backend-scoopstack/internal/bank"
	"github.com/scoopstack/backend-scoopstack/internal/catalog"
	"github.com/scoopstack/backend-scoopstack/internal/common"
	"github.com/scoopstack/backend-scoopstack/internal/customer"
	"github.com/scoopstack/backend-scoopstack/internal/obs"
	"github.com/scoopstack/backend-scoopstack/internal/seller"
)

// BillRenderer turns a block document into a downloadable PDF.
type BillRenderer interface {
	RenderBill(blocks []Block) ([]byte, error)
}

// Handler exposes the bill preview, export, and serial endpoints.
type Handler struct {
	Sellers   *seller.Service
	Banks     *bank.Service
	Customers *customer.Service
	Catalog   *catalog.Service
	Sequence  Sequence
	Renderer  BillRenderer
}

type billRequest struct {
	Customer string     `json:"customer"`
	SerialNo string     `json:"serialNo"`
	Date     string     `json:"date"`
	Lines    []LineItem `json:"lines"`
	Discount float64    `json:"discount"`
	Note     string     `json:"note"`
	Remarks  string     `json:"remarks"`
}

type billPreview struct {
	Blocks   []Block            `json:"blocks"`
	Totals   BillTotals         `json:"totals"`
	Customer *customer.Customer `json:"customer,omitempty"`
}

// NewDraft handles GET /api/v1/billing/draft and returns a fresh 15-row draft.
func (h *Handler) NewDraft(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"lines":    NewLines(15),
		"discount": 0,
	}})
}

// Preview handles POST /api/v1/billing/preview. It recomputes totals
// server-side, resolves the typed customer name, and returns the block
// document without rendering it.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	preview, err := h.assemble(r, userID, req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": preview})
}

// Export handles POST /api/v1/billing/export and streams the rendered PDF.
// A serial number is allocated when the draft does not carry one.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if h.Renderer == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "bill renderer not configured", nil)
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	if req.SerialNo == "" {
		serial, err := h.Sequence.Next(r.Context())
		if err != nil {
			obs.IncBillExport("error")
			common.WriteError(w, err)
			return
		}
		req.SerialNo = serial.Value
	}

	preview, err := h.assemble(r, userID, req)
	if err != nil {
		obs.IncBillExport("error")
		common.WriteError(w, err)
		return
	}

	data, err := h.Renderer.RenderBill(preview.Blocks)
	if err != nil {
		obs.IncBillExport("error")
		common.WriteError(w, err)
		return
	}
	obs.IncBillExport("ok")

	filename := fmt.Sprintf("Bill_%s.pdf", req.SerialNo)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type editLinesRequest struct {
	Lines []LineItem `json:"lines"`
	Op    string     `json:"op"`    // update | toggleFree | add
	Index int        `json:"index"` // row the op applies to
	Field string     `json:"field"` // update only
	Value string     `json:"value"` // update only
}

// EditLines handles POST /api/v1/billing/lines. It applies one edit to the
// draft and returns the recomputed rows, so clients never compute money
// values themselves. Product name edits consult the catalog for auto-fill.
func (h *Handler) EditLines(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req editLinesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}

	lines := Recompute(req.Lines)
	switch req.Op {
	case "update":
		products, err := h.Catalog.List(r.Context(), userID, catalog.ListParams{})
		if err != nil {
			common.WriteError(w, err)
			return
		}
		lines = UpdateLine(lines, req.Index, req.Field, req.Value, products)
	case "toggleFree":
		lines = ToggleFree(lines, req.Index)
	case "add":
		lines = AddLine(lines)
	default:
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "op must be update, toggleFree, or add", nil)
		return
	}

	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"lines":  lines,
		"totals": Totals(lines, 0),
	}})
}

// Serial handles POST /api/v1/billing/serial and allocates the next bill number.
func (h *Handler) Serial(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	serial, err := h.Sequence.Next(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": serial})
}

func (h *Handler) assemble(r *http.Request, userID string, req billRequest) (billPreview, error) {
	ctx := r.Context()

	lines := Recompute(req.Lines)
	totals := Totals(lines, req.Discount)

	customers, err := h.Customers.List(ctx, userID)
	if err != nil {
		return billPreview{}, err
	}

	input := BillInput{
		SerialNo:     req.SerialNo,
		CustomerName: req.Customer,
		Lines:        lines,
		Discount:     req.Discount,
		Note:         req.Note,
		Remarks:      req.Remarks,
	}

	input.Date = time.Now()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return billPreview{}, common.NewAppError("VALIDATION_ERROR", "date must be formatted YYYY-MM-DD", http.StatusBadRequest, err)
		}
		input.Date = parsed
	}

	preview := billPreview{Totals: totals}
	if resolved, ok := ResolveCustomer(customers, req.Customer); ok {
		preview.Customer = &resolved
		input.CustomerName = resolved.Name
		input.CustomerAddress = resolved.Address
		input.CustomerContact = resolved.Contact
	}

	sellerDetails, err := h.Sellers.Get(ctx, userID)
	if err != nil {
		return billPreview{}, err
	}
	bankDetails, err := h.Banks.Get(ctx, userID)
	if err != nil {
		return billPreview{}, err
	}

	preview.Blocks = BuildDocument(input, sellerDetails, bankDetails)
	return preview, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (billRequest, bool) {
	var req billRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return billRequest{}, false
	}
	return req, true
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return "", false
	}
	return userID, true
}

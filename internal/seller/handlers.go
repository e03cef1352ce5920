package seller

import (
	"encoding/json"
	"net/http"

	"github.com/scoopstack/backend-scoopstack/internal/common"
)

// Handler exposes REST endpoints for the seller profile.
type Handler struct {
	Service *Service
}

type detailsRequest struct {
	SellerName   string `json:"sellerName"`
	GSTNumber    string `json:"gstNumber"`
	FullAddress  string `json:"fullAddress"`
	Contact      string `json:"contact"`
	Slogan       string `json:"slogan"`
	LogoURL      string `json:"logoUrl"`
	QRCodeURL    string `json:"qrCodeUrl"`
	SignatureURL string `json:"signatureUrl"`
}

// Get handles GET /api/v1/seller.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "seller service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	details, err := h.Service.Get(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": details})
}

// Upsert handles PUT /api/v1/seller.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "seller service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	var req detailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	details, err := h.Service.Upsert(r.Context(), userID, Input{
		SellerName:   req.SellerName,
		GSTNumber:    req.GSTNumber,
		FullAddress:  req.FullAddress,
		Contact:      req.Contact,
		Slogan:       req.Slogan,
		LogoURL:      req.LogoURL,
		QRCodeURL:    req.QRCodeURL,
		SignatureURL: req.SignatureURL,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": details})
}

package seller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scoopstack/backend-scoopstack/internal/common"
)

// Details is the business identity printed on every invoice.
type Details struct {
	SellerName   string    `json:"sellerName"`
	GSTNumber    string    `json:"gstNumber,omitempty"`
	FullAddress  string    `json:"fullAddress,omitempty"`
	Contact      string    `json:"contact,omitempty"`
	Slogan       string    `json:"slogan,omitempty"`
	LogoURL      string    `json:"logoUrl,omitempty"`
	QRCodeURL    string    `json:"qrCodeUrl,omitempty"`
	SignatureURL string    `json:"signatureUrl,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// Input captures the payload for saving seller details.
type Input struct {
	SellerName   string
	GSTNumber    string
	FullAddress  string
	Contact      string
	Slogan       string
	LogoURL      string
	QRCodeURL    string
	SignatureURL string
}

// Service stores and retrieves the per-account seller profile.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a seller service over the shared pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Get returns the seller details for the account. A missing row yields the
// zero value rather than an error so first-time accounts render blank forms.
func (s *Service) Get(ctx context.Context, userID string) (Details, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT seller_name, gst_number, full_address, contact, slogan,
		       logo_url, qr_code_url, signature_url, updated_at
		FROM seller_details WHERE user_id = $1`, userID)

	var d Details
	err := row.Scan(&d.SellerName, &d.GSTNumber, &d.FullAddress, &d.Contact, &d.Slogan,
		&d.LogoURL, &d.QRCodeURL, &d.SignatureURL, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Details{}, nil
	}
	if err != nil {
		return Details{}, fmt.Errorf("get seller details: %w", err)
	}
	return d, nil
}

// Upsert creates or replaces the seller details for the account.
func (s *Service) Upsert(ctx context.Context, userID string, input Input) (Details, error) {
	input.SellerName = strings.TrimSpace(input.SellerName)
	if input.SellerName == "" {
		return Details{}, common.NewAppError("VALIDATION_ERROR", "seller name is required", http.StatusBadRequest, nil)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO seller_details (user_id, seller_name, gst_number, full_address, contact,
		                            slogan, logo_url, qr_code_url, signature_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (user_id) DO UPDATE SET
			seller_name   = EXCLUDED.seller_name,
			gst_number    = EXCLUDED.gst_number,
			full_address  = EXCLUDED.full_address,
			contact       = EXCLUDED.contact,
			slogan        = EXCLUDED.slogan,
			logo_url      = EXCLUDED.logo_url,
			qr_code_url   = EXCLUDED.qr_code_url,
			signature_url = EXCLUDED.signature_url,
			updated_at    = now()
		RETURNING seller_name, gst_number, full_address, contact, slogan,
		          logo_url, qr_code_url, signature_url, updated_at`,
		userID, input.SellerName, input.GSTNumber, input.FullAddress, input.Contact,
		input.Slogan, input.LogoURL, input.QRCodeURL, input.SignatureURL,
	)

	var d Details
	if err := row.Scan(&d.SellerName, &d.GSTNumber, &d.FullAddress, &d.Contact, &d.Slogan,
		&d.LogoURL, &d.QRCodeURL, &d.SignatureURL, &d.UpdatedAt); err != nil {
		return Details{}, fmt.Errorf("upsert seller details: %w", err)
	}
	return d, nil
}

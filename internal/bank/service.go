package bank

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scoopstack/backend-scoopstack/internal/common"
)

// Details is the banking block printed at the foot of an invoice.
type Details struct {
	BankName      string    `json:"bankName" validate:"required"`
	IFSCCode      string    `json:"ifscCode" validate:"required"`
	BranchName    string    `json:"branchName" validate:"required"`
	BankingName   string    `json:"bankingName" validate:"required"`
	AccountNumber string    `json:"accountNumber" validate:"required"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty" validate:"-"`
}

// Service stores and retrieves per-account bank details.
type Service struct {
	pool     *pgxpool.Pool
	validate *validator.Validate
}

// NewService constructs a bank service over the shared pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Get returns the bank details for the account, the zero value when unset.
func (s *Service) Get(ctx context.Context, userID string) (Details, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT bank_name, ifsc_code, branch_name, banking_name, account_number, updated_at
		FROM bank_details WHERE seller_id = $1`, userID)

	var d Details
	err := row.Scan(&d.BankName, &d.IFSCCode, &d.BranchName, &d.BankingName, &d.AccountNumber, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Details{}, nil
	}
	if err != nil {
		return Details{}, fmt.Errorf("get bank details: %w", err)
	}
	return d, nil
}

// Upsert validates and saves the bank details. All five fields are required.
func (s *Service) Upsert(ctx context.Context, userID string, input Details) (Details, error) {
	if err := s.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		details := map[string]string{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Field()] = "required"
			}
		}
		return Details{}, common.NewAppError("VALIDATION_ERROR", "all bank detail fields are required", http.StatusBadRequest, err).
			WithDetails(details)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO bank_details (seller_id, bank_name, ifsc_code, branch_name, banking_name, account_number, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (seller_id) DO UPDATE SET
			bank_name      = EXCLUDED.bank_name,
			ifsc_code      = EXCLUDED.ifsc_code,
			branch_name    = EXCLUDED.branch_name,
			banking_name   = EXCLUDED.banking_name,
			account_number = EXCLUDED.account_number,
			updated_at     = now()
		RETURNING bank_name, ifsc_code, branch_name, banking_name, account_number, updated_at`,
		userID, input.BankName, input.IFSCCode, input.BranchName, input.BankingName, input.AccountNumber,
	)

	var d Details
	if err := row.Scan(&d.BankName, &d.IFSCCode, &d.BranchName, &d.BankingName, &d.AccountNumber, &d.UpdatedAt); err != nil {
		return Details{}, fmt.Errorf("upsert bank details: %w", err)
	}
	return d, nil
}

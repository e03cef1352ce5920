package customer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scoopstack/backend-scoopstack/internal/common"
)

// Customer is a buyer the account raises invoices against.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Input captures the payload for creating a customer.
type Input struct {
	Name    string
	Contact string
	Address string
}

// Service manages the per-account customer book.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a customer service over the shared pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// List returns every customer for the account, ordered by name.
func (s *Service) List(ctx context.Context, userID string) ([]Customer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, contact, address, created_at
		FROM customers WHERE user_id = $1
		ORDER BY lower(name)`, userID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	customers := make([]Customer, 0)
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Contact, &c.Address, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return customers, nil
}

// Create adds a customer to the account's book.
func (s *Service) Create(ctx context.Context, userID string, input Input) (Customer, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Customer{}, common.NewAppError("VALIDATION_ERROR", "customer name is required", http.StatusBadRequest, nil)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO customers (user_id, name, contact, address)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, contact, address, created_at`,
		userID, input.Name, strings.TrimSpace(input.Contact), strings.TrimSpace(input.Address),
	)

	var c Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Contact, &c.Address, &c.CreatedAt); err != nil {
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

// Delete removes a customer owned by the account.
func (s *Service) Delete(ctx context.Context, userID, customerID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM customers WHERE id = $1 AND user_id = $2`, customerID, userID)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.NewAppError("NOT_FOUND", "customer not found", http.StatusNotFound, nil)
	}
	return nil
}

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/scoopstack/backend-scoopstack/internal/common"
)

// Product is a stocked item offered by the account.
type Product struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category,omitempty"`
	Unit         string    `json:"unit"`
	Quantity     float64   `json:"quantity"`
	MinStock     *float64  `json:"minStock,omitempty"`
	SellingPrice *float64  `json:"sellingPrice,omitempty"`
	Price        *float64  `json:"price,omitempty"`
	LowStock     bool      `json:"lowStock"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ProductInput captures the payload for creating or updating a product.
type ProductInput struct {
	Name         string
	Category     string
	Unit         string
	Quantity     float64
	MinStock     *float64
	SellingPrice *float64
	Price        *float64
}

// ListParams filters the product listing.
type ListParams struct {
	Query        string
	LowStockOnly bool
}

// RestockItem is one line of a restock submission.
type RestockItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Unit      string  `json:"unit"`
	Quantity  float64 `json:"quantity"`
}

// RestockEntry is a persisted restock event with its item snapshot.
type RestockEntry struct {
	ID        string        `json:"id"`
	Items     []RestockItem `json:"items"`
	CreatedAt time.Time     `json:"createdAt"`
}

// HistoryParams filters the restock history listing.
type HistoryParams struct {
	Date      string // YYYY-MM-DD
	Month     string // YYYY-MM
	ThisMonth bool
	SortAsc   bool
}

// Service orchestrates product storage, restocks, and the history log.
type Service struct {
	pool   *pgxpool.Pool
	cache  *Cache
	logger zerolog.Logger
}

// NewService constructs a catalog service.
func NewService(pool *pgxpool.Pool, cache *Cache, logger zerolog.Logger) *Service {
	return &Service{pool: pool, cache: cache, logger: logger}
}

func productsCacheKey(userID string) string {
	return "catalog:products:" + userID
}

const productColumns = `id, name, category, unit, quantity, min_stock, selling_price, price, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.Quantity,
		&p.MinStock, &p.SellingPrice, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	p.LowStock = lowStock(p)
	return p, nil
}

// lowStock flags a product only when the threshold is set and stock has
// dropped strictly below it. Sitting exactly at the minimum is not low.
func lowStock(p Product) bool {
	return p.MinStock != nil && p.Quantity < *p.MinStock
}

// listQuery builds the product listing statement. The free-text query matches
// name and category alike, case-insensitively.
func listQuery(userID string, params ListParams) (string, []any) {
	query := `SELECT ` + productColumns + ` FROM products WHERE user_id = $1`
	args := []any{userID}
	if params.Query != "" {
		query += ` AND (lower(name) LIKE $2 OR lower(category) LIKE $2)`
		args = append(args, "%"+strings.ToLower(params.Query)+"%")
	}
	query += ` ORDER BY lower(name)`
	return query, args
}

// List returns the account's products. The unfiltered listing is served
// read-through from Redis; filters always hit the database.
func (s *Service) List(ctx context.Context, userID string, params ListParams) ([]Product, error) {
	filtered := params.Query != "" || params.LowStockOnly
	key := productsCacheKey(userID)
	if !filtered {
		var cached []Product
		if ok, err := s.cache.GetJSON(ctx, key, &cached); err != nil {
			s.logger.Warn().Err(err).Msg("product cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	query, args := listQuery(userID, params)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if params.LowStockOnly && !p.LowStock {
			continue
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	if !filtered {
		if err := s.cache.SetJSON(ctx, key, products); err != nil {
			s.logger.Warn().Err(err).Msg("product cache write failed")
		}
	}
	return products, nil
}

// Get returns a single product owned by the account.
func (s *Service) Get(ctx context.Context, userID, productID string) (Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 AND user_id = $2`,
		productID, userID)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, common.NewAppError("NOT_FOUND", "product not found", http.StatusNotFound, nil)
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// Create adds a product. Names are unique per account, case-insensitively.
func (s *Service) Create(ctx context.Context, userID string, input ProductInput) (Product, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Product{}, common.NewAppError("VALIDATION_ERROR", "product name is required", http.StatusBadRequest, nil)
	}
	if input.Unit == "" {
		input.Unit = "piece"
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO products (user_id, name, category, unit, quantity, min_stock, selling_price, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+productColumns,
		userID, input.Name, input.Category, input.Unit, input.Quantity,
		input.MinStock, input.SellingPrice, input.Price,
	)
	p, err := scanProduct(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, common.NewAppError("PRODUCT_EXISTS", "a product with this name already exists", http.StatusConflict, err)
		}
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	s.invalidate(ctx, userID)
	return p, nil
}

// Update overwrites a product's fields.
func (s *Service) Update(ctx context.Context, userID, productID string, input ProductInput) (Product, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Product{}, common.NewAppError("VALIDATION_ERROR", "product name is required", http.StatusBadRequest, nil)
	}
	if input.Unit == "" {
		input.Unit = "piece"
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE products
		SET name = $3, category = $4, unit = $5, quantity = $6,
		    min_stock = $7, selling_price = $8, price = $9, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+productColumns,
		productID, userID, input.Name, input.Category, input.Unit, input.Quantity,
		input.MinStock, input.SellingPrice, input.Price,
	)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, common.NewAppError("NOT_FOUND", "product not found", http.StatusNotFound, nil)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, common.NewAppError("PRODUCT_EXISTS", "a product with this name already exists", http.StatusConflict, err)
		}
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	s.invalidate(ctx, userID)
	return p, nil
}

// Delete removes a product owned by the account.
func (s *Service) Delete(ctx context.Context, userID, productID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM products WHERE id = $1 AND user_id = $2`, productID, userID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.NewAppError("NOT_FOUND", "product not found", http.StatusNotFound, nil)
	}
	s.invalidate(ctx, userID)
	return nil
}

// Restock applies quantity increments to products and records the event in
// the history log as one atomic transaction.
func (s *Service) Restock(ctx context.Context, userID string, items []RestockItem) (RestockEntry, error) {
	valid := make([]RestockItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 {
			continue
		}
		valid = append(valid, item)
	}
	if len(valid) == 0 {
		return RestockEntry{}, common.NewAppError("VALIDATION_ERROR", "at least one restock item with a positive quantity is required", http.StatusBadRequest, nil)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return RestockEntry{}, fmt.Errorf("begin restock tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, item := range valid {
		row := tx.QueryRow(ctx, `
			UPDATE products SET quantity = quantity + $3, updated_at = now()
			WHERE id = $1 AND user_id = $2
			RETURNING name, unit`,
			item.ProductID, userID, item.Quantity)
		var name, unit string
		if err := row.Scan(&name, &unit); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return RestockEntry{}, common.NewAppError("NOT_FOUND", "product not found: "+item.ProductID, http.StatusNotFound, nil)
			}
			return RestockEntry{}, fmt.Errorf("apply restock: %w", err)
		}
		valid[i].Name = name
		valid[i].Unit = unit
	}

	snapshot, err := json.Marshal(valid)
	if err != nil {
		return RestockEntry{}, fmt.Errorf("marshal restock items: %w", err)
	}

	var entry RestockEntry
	row := tx.QueryRow(ctx, `
		INSERT INTO restock_history (user_id, items)
		VALUES ($1, $2)
		RETURNING id, created_at`, userID, snapshot)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return RestockEntry{}, fmt.Errorf("record restock: %w", err)
	}
	entry.Items = valid

	if err := tx.Commit(ctx); err != nil {
		return RestockEntry{}, fmt.Errorf("commit restock: %w", err)
	}
	s.invalidate(ctx, userID)
	return entry, nil
}

// History lists restock events, newest first unless SortAsc is set.
func (s *Service) History(ctx context.Context, userID string, params HistoryParams) ([]RestockEntry, error) {
	query := `SELECT id, items, created_at FROM restock_history WHERE user_id = $1`
	args := []any{userID}

	switch {
	case params.Date != "":
		day, err := time.Parse("2006-01-02", params.Date)
		if err != nil {
			return nil, common.NewAppError("VALIDATION_ERROR", "date must be formatted YYYY-MM-DD", http.StatusBadRequest, err)
		}
		query += ` AND created_at::date = $2`
		args = append(args, day)
	case params.Month != "":
		if _, err := time.Parse("2006-01", params.Month); err != nil {
			return nil, common.NewAppError("VALIDATION_ERROR", "month must be formatted YYYY-MM", http.StatusBadRequest, err)
		}
		query += ` AND to_char(created_at, 'YYYY-MM') = $2`
		args = append(args, params.Month)
	case params.ThisMonth:
		query += ` AND date_trunc('month', created_at) = date_trunc('month', now())`
	}

	if params.SortAsc {
		query += ` ORDER BY created_at ASC`
	} else {
		query += ` ORDER BY created_at DESC`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list restock history: %w", err)
	}
	defer rows.Close()

	entries := make([]RestockEntry, 0)
	for rows.Next() {
		var entry RestockEntry
		var snapshot []byte
		if err := rows.Scan(&entry.ID, &snapshot, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan restock entry: %w", err)
		}
		if err := json.Unmarshal(snapshot, &entry.Items); err != nil {
			return nil, fmt.Errorf("decode restock items: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restock history: %w", err)
	}
	return entries, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, productsCacheKey(userID)); err != nil {
		s.logger.Warn().Err(err).Msg("product cache invalidation failed")
	}
}

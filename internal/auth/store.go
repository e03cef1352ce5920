package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("auth: user not found")

// ErrDuplicateEmail is returned when the email is already registered.
var ErrDuplicateEmail = errors.New("auth: email already registered")

// Record is a full user row including credential and OTP state.
type Record struct {
	ID           string
	Name         string
	Email        string
	Contact      string
	ShopName     string
	ShopAddress  string
	PasswordHash string
	OTP          string
	OTPExpiresAt time.Time
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateParams captures the fields persisted at registration time.
type CreateParams struct {
	Name         string
	Email        string
	Contact      string
	ShopName     string
	ShopAddress  string
	PasswordHash string
	OTP          string
	OTPExpiresAt time.Time
}

// ProfileParams captures the mutable account profile fields.
type ProfileParams struct {
	Name        string
	Contact     string
	ShopName    string
	ShopAddress string
}

// Store persists user accounts.
type Store interface {
	Create(ctx context.Context, params CreateParams) (Record, error)
	GetByEmail(ctx context.Context, email string) (Record, error)
	GetByID(ctx context.Context, id string) (Record, error)
	SetOTP(ctx context.Context, id, otp string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, id string) error
	UpdateProfile(ctx context.Context, id string, params ProfileParams) (Record, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// PGStore is the Postgres-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore over the shared pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const userColumns = `id, name, email, contact, shop_name, shop_address, password_hash,
	COALESCE(otp, ''), COALESCE(otp_expires, 'epoch'::timestamptz), is_verified, created_at, updated_at`

func scanUser(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.Name, &rec.Email, &rec.Contact, &rec.ShopName, &rec.ShopAddress,
		&rec.PasswordHash, &rec.OTP, &rec.OTPExpiresAt, &rec.Verified, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Create inserts a new unverified user.
func (s *PGStore) Create(ctx context.Context, params CreateParams) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, contact, shop_name, shop_address, password_hash, otp, otp_expires)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+userColumns,
		params.Name, params.Email, params.Contact, params.ShopName, params.ShopAddress,
		params.PasswordHash, params.OTP, params.OTPExpiresAt,
	)
	rec, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicateEmail
		}
		return Record{}, err
	}
	return rec, nil
}

// GetByEmail looks a user up by their lowercase email.
func (s *PGStore) GetByEmail(ctx context.Context, email string) (Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetByID looks a user up by primary key.
func (s *PGStore) GetByID(ctx context.Context, id string) (Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// SetOTP replaces the pending one-time passcode for a user.
func (s *PGStore) SetOTP(ctx context.Context, id, otp string, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET otp = $2, otp_expires = $3, updated_at = now() WHERE id = $1`,
		id, otp, expiresAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkVerified flips the verification flag and clears the pending OTP.
func (s *PGStore) MarkVerified(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET is_verified = TRUE, otp = NULL, otp_expires = NULL, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile overwrites the account profile fields.
func (s *PGStore) UpdateProfile(ctx context.Context, id string, params ProfileParams) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET name = $2, contact = $3, shop_name = $4, shop_address = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, params.Name, params.Contact, params.ShopName, params.ShopAddress,
	)
	return scanUser(row)
}

// UpdatePassword replaces the stored password hash.
func (s *PGStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

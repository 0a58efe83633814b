package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists accounts in the "accounts" table of the pool's
// search_path. The session list is a JSONB column so the whole record
// round-trips in one statement.
//
// The pool is owned by the caller; the store never closes it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("account: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

var _ Store = (*PostgresStore)(nil)

const accountColumns = `id, username, email, first_name, last_name, password_hash, role,
	is_verified, is_active,
	verification_token_hash, verification_token_expires,
	reset_token_hash, reset_token_expires,
	sessions, version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, acc *Account) error {
	const op = "account.PostgresStore.Create"
	if acc == nil || acc.ID == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "id is required"}
	}

	sessions, err := encodeSessions(acc.Sessions)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb, 1, $15, $15)`,
		acc.ID, acc.Username, acc.Email, acc.FirstName, acc.LastName, acc.PasswordHash, string(acc.Role),
		acc.IsVerified, acc.IsActive,
		nullString(acc.VerificationTokenHash), nullTime(acc.VerificationTokenExpires),
		nullString(acc.ResetTokenHash), nullTime(acc.ResetTokenExpires),
		sessions, acc.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	acc.UpdatedAt = acc.CreatedAt
	acc.Version = 1
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Account, error) {
	return s.getOne(ctx, "account.PostgresStore.GetByID", `id = $1`, id)
}

func (s *PostgresStore) GetByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	ident := NormalizeIdentifier(identifier)
	if IsEmailIdentifier(ident) {
		return s.getOne(ctx, "account.PostgresStore.GetByIdentifier", `email = $1`, ident)
	}
	return s.getOne(ctx, "account.PostgresStore.GetByIdentifier", `username = $1`, ident)
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return s.getOne(ctx, "account.PostgresStore.GetByEmail", `email = $1`, NormalizeEmail(email))
}

func (s *PostgresStore) GetByVerificationTokenHash(ctx context.Context, hash string) (*Account, error) {
	const op = "account.PostgresStore.GetByVerificationTokenHash"
	if strings.TrimSpace(hash) == "" {
		return nil, notFound(op)
	}
	return s.getOne(ctx, op, `verification_token_hash = $1`, hash)
}

func (s *PostgresStore) GetByResetTokenHash(ctx context.Context, hash string) (*Account, error) {
	const op = "account.PostgresStore.GetByResetTokenHash"
	if strings.TrimSpace(hash) == "" {
		return nil, notFound(op)
	}
	return s.getOne(ctx, op, `reset_token_hash = $1`, hash)
}

func (s *PostgresStore) Save(ctx context.Context, acc *Account) error {
	const op = "account.PostgresStore.Save"
	if acc == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil account"}
	}

	sessions, err := encodeSessions(acc.Sessions)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var (
		version   int64
		updatedAt time.Time
	)
	err = s.pool.QueryRow(ctx,
		`UPDATE accounts SET
		   username = $2, email = $3, first_name = $4, last_name = $5,
		   password_hash = $6, role = $7, is_verified = $8, is_active = $9,
		   verification_token_hash = $10, verification_token_expires = $11,
		   reset_token_hash = $12, reset_token_expires = $13,
		   sessions = $14::jsonb,
		   updated_at = now(),
		   version = version + 1
		 WHERE id = $1 AND version = $15
		 RETURNING version, updated_at`,
		acc.ID, acc.Username, acc.Email, acc.FirstName, acc.LastName,
		acc.PasswordHash, string(acc.Role), acc.IsVerified, acc.IsActive,
		nullString(acc.VerificationTokenHash), nullTime(acc.VerificationTokenExpires),
		nullString(acc.ResetTokenHash), nullTime(acc.ResetTokenExpires),
		sessions, acc.Version,
	).Scan(&version, &updatedAt)

	switch {
	case err == nil:
		acc.Version = version
		acc.UpdatedAt = updatedAt.UTC()
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		var exists bool
		if qerr := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, acc.ID).Scan(&exists); qerr != nil {
			return fmt.Errorf("%s: %w", op, qerr)
		}
		if !exists {
			return notFound(op)
		}
		return stale(op)
	default:
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	const op = "account.PostgresStore.Delete"

	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(op)
	}
	return nil
}

func (s *PostgresStore) getOne(ctx context.Context, op, where string, arg any) (*Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where+` LIMIT 1`, arg)

	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(op)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		a          Account
		role       string
		vHash      *string
		vExpires   *time.Time
		rHash      *string
		rExpires   *time.Time
		sessionsJS []byte
	)

	if err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.FirstName, &a.LastName, &a.PasswordHash, &role,
		&a.IsVerified, &a.IsActive,
		&vHash, &vExpires,
		&rHash, &rExpires,
		&sessionsJS, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	a.Role = Role(role)
	if vHash != nil {
		a.VerificationTokenHash = *vHash
	}
	if vExpires != nil {
		a.VerificationTokenExpires = vExpires.UTC()
	}
	if rHash != nil {
		a.ResetTokenHash = *rHash
	}
	if rExpires != nil {
		a.ResetTokenExpires = rExpires.UTC()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()

	if len(sessionsJS) > 0 {
		if err := json.Unmarshal(sessionsJS, &a.Sessions); err != nil {
			return nil, fmt.Errorf("decode sessions: %w", err)
		}
	}
	for i := range a.Sessions {
		a.Sessions[i].CreatedAt = a.Sessions[i].CreatedAt.UTC()
		a.Sessions[i].ExpiresAt = a.Sessions[i].ExpiresAt.UTC()
	}
	return &a, nil
}

// ---- helpers ----

func encodeSessions(sessions []Session) (string, error) {
	if len(sessions) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(sessions)
	if err != nil {
		return "", fmt.Errorf("encode sessions: %w", err)
	}
	return string(b), nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// pgClassifyUniqueViolation maps SQLSTATE 23505 to the logical field behind
// the violated constraint.
func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_accounts_username" || strings.Contains(c, "username"):
		return "username", true
	case c == "uq_accounts_email" || strings.Contains(c, "email"):
		return "email", true
	case strings.HasSuffix(c, "_pkey"):
		return "id", true
	default:
		return "unique", true
	}
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"instapulse/internal/model"
	"instapulse/pkg/otel"
)

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, email, password_hash, role, first_name, last_name, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.FirstName, &a.LastName, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new account. A taken email yields ErrDuplicate.
func (r *AccountRepository) Create(ctx context.Context, a *model.Account) error {
	query := `
        INSERT INTO users (email, password_hash, role, first_name, last_name)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at
    `
	err := otel.QueryRow(ctx, "users.insert", query, func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, a.Email, a.PasswordHash, a.Role, a.FirstName, a.LastName).
			Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	})
	return translate(err)
}

// EnsureAdmin inserts the account unless the email is already registered.
// Returns true when a row was created.
func (r *AccountRepository) EnsureAdmin(ctx context.Context, a *model.Account) (bool, error) {
	query := `
        INSERT INTO users (email, password_hash, role, first_name, last_name)
        VALUES ($1, $2, 'admin', $3, $4)
        ON CONFLICT (email) DO NOTHING
    `
	tag, err := r.db.Exec(ctx, query, a.Email, a.PasswordHash, a.FirstName, a.LastName)
	if err != nil {
		return false, fmt.Errorf("failed to seed admin: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FindByEmail returns account by email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE email = $1`
	a, err := scanAccount(r.db.QueryRow(ctx, query, email))
	return a, translate(err)
}

// FindByID returns account by id.
func (r *AccountRepository) FindByID(ctx context.Context, id int) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`
	a, err := scanAccount(r.db.QueryRow(ctx, query, id))
	return a, translate(err)
}

// List returns every account, newest first.
func (r *AccountRepository) List(ctx context.Context) ([]*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []*model.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Delete removes the account; its posts and their analytics cascade.
func (r *AccountRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

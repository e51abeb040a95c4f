package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, username, password_hash, google_id, secret, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.GoogleID, &user.Secret, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

// CreateUser inserts a local account. A username collision surfaces as
// ErrDuplicateUsername.
func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash)
		VALUES ($1, $2, $3)
	`, user.ID, user.Username, user.PasswordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
	return scanUser(row)
}

// FindOrCreateByGoogleID resolves a federated identity to a user, creating
// one on first sign-in. The upsert keys on the google_id unique constraint,
// so concurrent calls with the same id always resolve to a single user.
func (s *PostgresStore) FindOrCreateByGoogleID(ctx context.Context, id, googleID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, google_id)
		VALUES ($1, $2)
		ON CONFLICT (google_id) DO UPDATE SET google_id = EXCLUDED.google_id
		RETURNING `+userColumns+`
	`, id, googleID)
	user, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("find or create by google id: %w", err)
	}
	return user, nil
}

// EnsureList creates the user's list with the given name and seed items if it
// does not exist yet. The insert is set-if-absent, so concurrent first views
// seed at most once; the loser of the race inserts nothing.
func (s *PostgresStore) EnsureList(ctx context.Context, userID, name string, seed []Item) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin ensure list: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO lists (user_id, name)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, name)
	if err != nil {
		return false, fmt.Errorf("insert list: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensure list rows affected: %w", err)
	}
	if inserted == 0 {
		return false, nil
	}

	for _, item := range seed {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO items (id, user_id, task)
			VALUES ($1, $2, $3)
		`, item.ID, userID, item.Task); err != nil {
			return false, fmt.Errorf("seed item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit ensure list: %w", err)
	}
	return true, nil
}

// GetList returns the user's list with items in insertion order, or
// ErrNotFound if the user has no list yet.
func (s *PostgresStore) GetList(ctx context.Context, userID string) (List, error) {
	var list List
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, name, created_at FROM lists WHERE user_id=$1
	`, userID).Scan(&list.UserID, &list.Name, &list.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return List{}, ErrNotFound
	}
	if err != nil {
		return List{}, fmt.Errorf("select list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task FROM items WHERE user_id=$1 ORDER BY position
	`, userID)
	if err != nil {
		return List{}, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Task); err != nil {
			return List{}, fmt.Errorf("scan item: %w", err)
		}
		list.Items = append(list.Items, item)
	}
	if err := rows.Err(); err != nil {
		return List{}, fmt.Errorf("iterate items: %w", err)
	}
	return list, nil
}

// AddItem appends an item to the user's list. The insert has set semantics:
// a second add with an id already present is a no-op rather than an error.
func (s *PostgresStore) AddItem(ctx context.Context, userID string, item Item) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, user_id, task)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, userID, item.Task)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// RemoveItem deletes the item with the given id from the user's list.
// Deleting an id that is not present succeeds and changes nothing.
func (s *PostgresStore) RemoveItem(ctx context.Context, userID, itemID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM items WHERE id=$1 AND user_id=$2
	`, itemID, userID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// SetSecret overwrites the user's secret wholesale. No history is kept.
func (s *PostgresStore) SetSecret(ctx context.Context, userID, secret string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET secret=$2, updated_at=NOW() WHERE id=$1
	`, userID, secret)
	if err != nil {
		return fmt.Errorf("update secret: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("secret rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSecrets returns every non-empty secret, newest first, with no author
// attribution. The secrets wall is intentionally a public aggregate.
func (s *PostgresStore) ListSecrets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT secret FROM users
		WHERE secret IS NOT NULL AND secret <> ''
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("select secrets: %w", err)
	}
	defer rows.Close()

	var secrets []string
	for rows.Next() {
		var secret string
		if err := rows.Scan(&secret); err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		secrets = append(secrets, secret)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate secrets: %w", err)
	}
	return secrets, nil
}

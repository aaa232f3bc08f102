package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/zeromicro/go-zero/core/logx"
)

// BaseRepository provides common database operations
type BaseRepository struct {
	db *sqlx.DB
}

func NewBaseRepository(db *sqlx.DB) *BaseRepository {
	return &BaseRepository{db: db}
}

// GetByID retrieves a record by ID
func (r *BaseRepository) GetByID(ctx context.Context, dest interface{}, query string, id interface{}) error {
	err := r.db.GetContext(ctx, dest, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("record not found")
		}
		logx.Errorf("Failed to get record by ID: %v", err)
		return fmt.Errorf("failed to get record by ID: %w", err)
	}
	return nil
}

// SelectUserByUsernameQuery is the lookup PasswordHandler.Authenticate runs.
const SelectUserByUsernameQuery = `
	SELECT id, username, email, password_hash, created_at, updated_at
	FROM users WHERE username = $1`

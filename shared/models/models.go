// Package models holds the sqlx row structs the authority persists
// outside the in-process session tree: principal/credential records. The
// services registry and audit log have their own row types in
// internal/cas/store/postgres, since they belong to that subsystem.
package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel carries the fields every persisted row shares.
type BaseModel struct {
	ID        uuid.UUID `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// User is the credential record the password CredentialHandler resolves
// against. PasswordHash is never serialized to JSON.
type User struct {
	BaseModel
	Username     string `db:"username" json:"username"`
	Email        string `db:"email" json:"email"`
	PasswordHash string `db:"password_hash" json:"-"`
}

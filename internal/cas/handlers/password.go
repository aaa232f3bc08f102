// Package handlers holds the concrete collaborators the authority ships
// with: the password cas.Credential/cas.CredentialHandler pair for primary
// login, and the https-only cas.ProxyCallbackValidator used for delegation.
package handlers

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/nordkirke/cas-authority/internal/cas"
	"github.com/nordkirke/cas-authority/shared/models"
	"github.com/nordkirke/cas-authority/shared/repository"
)

// PasswordCredential carries a username/password pair submitted at login.
type PasswordCredential struct {
	Username string
	Password string
}

func (PasswordCredential) Kind() string { return "password" }

// PasswordHandler resolves PasswordCredential against the users table,
// the same bcrypt.CompareHashAndPassword check domain/auth/auth.go's
// CheckPassword and loginLogic.go perform, adapted to the
// cas.CredentialHandler shape instead of returning a JWT pair directly.
type PasswordHandler struct {
	repo *repository.BaseRepository
}

func NewPasswordHandler(db *sqlx.DB) *PasswordHandler {
	return &PasswordHandler{repo: repository.NewBaseRepository(db)}
}

func (h *PasswordHandler) Name() string { return "password" }

func (h *PasswordHandler) Supports(c cas.Credential) bool {
	_, ok := c.(PasswordCredential)
	return ok
}

func (h *PasswordHandler) Authenticate(ctx context.Context, c cas.Credential) (cas.Principal, []cas.Authentication, map[string][]string, error) {
	cred, ok := c.(PasswordCredential)
	if !ok {
		return cas.Principal{}, nil, nil, fmt.Errorf("password: unexpected credential type %T", c)
	}

	var user models.User
	if err := h.repo.GetByID(ctx, &user, repository.SelectUserByUsernameQuery, cred.Username); err != nil {
		return cas.Principal{}, nil, nil, outcomeErr{cas.AuthPrincipalNotFound, fmt.Errorf("password: lookup %q: %w", cred.Username, err)}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cred.Password)); err != nil {
		return cas.Principal{}, nil, nil, outcomeErr{cas.AuthBadCredentials, err}
	}

	principal := cas.Principal{
		ID: user.ID.String(),
		Attributes: map[string][]string{
			"username": {user.Username},
			"email":    {user.Email},
		},
	}
	auth := cas.Authentication{
		Principal:  principal,
		Method:     h.Name(),
		Attributes: principal.Attributes,
	}
	return principal, []cas.Authentication{auth}, principal.Attributes, nil
}

// outcomeErr reports a specific cas.AuthenticationOutcome alongside the
// underlying error, so AuthenticationManager can surface a more precise
// failure than a blanket AuthBadCredentials.
type outcomeErr struct {
	outcome cas.AuthenticationOutcome
	cause   error
}

func (e outcomeErr) Error() string                        { return e.cause.Error() }
func (e outcomeErr) Unwrap() error                         { return e.cause }
func (e outcomeErr) Outcome() cas.AuthenticationOutcome    { return e.outcome }

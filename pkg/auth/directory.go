package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cofferdb/coffer/pkg/errors"
)

// DirectoryHandler talks to a REST directory service that owns externally
// sourced accounts. The service exposes:
//
//	POST {endpoint}/v1/authenticate  {"username": ..., "password": ...}
//	GET  {endpoint}/v1/accounts/{username}
//
// Both return an account payload with the directory's grant view.
type DirectoryHandler struct {
	client *resty.Client
}

// directoryAccount is the payload shape returned by the directory service
type directoryAccount struct {
	Username  string              `json:"username"`
	Active    bool                `json:"active"`
	Roles     []string            `json:"roles"`
	Databases map[string]struct {
		Level       string            `json:"level"`
		Collections map[string]string `json:"collections"`
	} `json:"databases"`
}

// NewDirectoryHandler creates a handler for the directory at endpoint.
// apiKey may be empty for unauthenticated directories.
func NewDirectoryHandler(endpoint, apiKey string, timeout time.Duration) *DirectoryHandler {
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &DirectoryHandler{client: client}
}

// Authenticate verifies the credentials against the directory
func (h *DirectoryHandler) Authenticate(ctx context.Context, username, password string) (User, error) {
	var account directoryAccount
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": username, "password": password}).
		SetResult(&account).
		Post("/v1/authenticate")
	if err != nil {
		return User{}, errors.NewExternalError("directory authenticate request failed", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return h.materialize(account)
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return User{}, errors.NewAuthError("directory rejected credentials")
	default:
		return User{}, errors.NewExternalError(
			fmt.Sprintf("directory returned status %d", resp.StatusCode()), nil)
	}
}

// Refresh re-fetches the directory's view of an account
func (h *DirectoryHandler) Refresh(ctx context.Context, username string) (User, error) {
	var account directoryAccount
	resp, err := h.client.R().
		SetContext(ctx).
		SetResult(&account).
		SetPathParam("username", username).
		Get("/v1/accounts/{username}")
	if err != nil {
		return User{}, errors.NewExternalError("directory refresh request failed", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return h.materialize(account)
	case http.StatusNotFound:
		return User{}, errors.NewNotFoundError("directory account")
	default:
		return User{}, errors.NewExternalError(
			fmt.Sprintf("directory returned status %d", resp.StatusCode()), nil)
	}
}

// materialize converts a directory payload into an external-source user.
// External accounts carry no local password digest; the directory remains
// the only authority for their credentials.
func (h *DirectoryHandler) materialize(account directoryAccount) (User, error) {
	if account.Username == "" {
		return User{}, errors.NewValidationError("directory returned account without username")
	}
	u := User{
		username:       account.Username,
		active:         account.Active,
		source:         SourceExternal,
		passwordMethod: MethodBcrypt,
		databases:      make(map[string]DatabaseContext),
		roles:          make(map[string]struct{}),
	}
	u.SetRoles(account.Roles)
	for dbname, entry := range account.Databases {
		u.GrantDatabase(dbname, ParseAccessLevel(entry.Level))
		for coll, lvl := range entry.Collections {
			u.GrantCollection(dbname, coll, ParseAccessLevel(lvl))
		}
	}
	return u, nil
}

// Compile-time interface check
var _ Handler = (*DirectoryHandler)(nil)

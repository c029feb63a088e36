package auth

import "context"

// Handler is the optional external directory source (an LDAP-like system).
// It confirms externally managed accounts and supplies their grants; such
// accounts are never created or removed through the normal mutation API.
type Handler interface {
	// Authenticate verifies the credentials against the directory and
	// returns the materialized user (source SourceExternal) on success.
	// A rejected credential or unknown account is an Auth error.
	Authenticate(ctx context.Context, username, password string) (User, error)

	// Refresh re-fetches the directory's current view of an account during
	// a cache reload. NotFound means the account no longer exists there.
	Refresh(ctx context.Context, username string) (User, error)
}

// QueryRegistry is notified when permission-affecting mutations occur so
// cached query plans referencing stale grants can be dropped.
type QueryRegistry interface {
	InvalidateAll()
}

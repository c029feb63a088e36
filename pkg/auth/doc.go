// Package auth implements Coffer's authorization kernel: the in-memory
// user cache, the permission model and the resolution algorithm that
// every request-path access check goes through.
//
// # Model
//
// A User carries an activation flag, a credential triple, a set of role
// names and a two-level grant map: databases to DatabaseContext, each
// context holding its own access level plus per-collection levels. The
// reserved name "*" acts as a wildcard fallback at both levels.
// AccessLevel is the three-valued lattice None < ReadOnly < ReadWrite.
//
// # Resolution
//
// CollectionAuthLevel walks exact collection entry, then the "*"
// collection entry, then the context's own database level; when the
// exact database context is absent, the "*" database context is
// consulted the same way. Roles are other user records named in the
// principal's role set: their levels are resolved recursively up to a
// bounded depth and merged by maximum. Unknown and inactive principals
// always resolve to None.
//
// # UserManager
//
// UserManager is the single authority over the cache. It loads user
// documents from a UserStore lazily: Outdate marks the cache stale and
// the next operation reloads it, with at most one reload in flight.
// Mutations (StoreUser, UpdateUser, RemoveUser, ...) persist through
// the store first and update the cache only on success. An optional
// directory Handler supplies externally sourced accounts that exist
// only while the directory confirms them.
//
// TokenService mints and validates bearer tokens on top of the
// manager's credential checks.
package auth

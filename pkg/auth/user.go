package auth

import (
	"github.com/cofferdb/coffer/pkg/errors"
	"github.com/cofferdb/coffer/pkg/types"
)

// DatabaseContext is a user's grant record for one database: the database's
// own level plus per-collection overrides.
type DatabaseContext struct {
	ownLevel    AccessLevel
	collections map[string]AccessLevel
}

// collectionLevel resolves a collection inside this context. The chain is
// exact entry, then the "*" entry, then the context's own database level.
func (c DatabaseContext) collectionLevel(collection string) AccessLevel {
	if lvl, ok := c.collections[collection]; ok {
		return lvl
	}
	if lvl, ok := c.collections[Wildcard]; ok {
		return lvl
	}
	return c.ownLevel
}

// User represents one account and its grants. It never talks to storage or
// the cache; mutations only change the in-memory value and must be persisted
// by the UserManager. The zero value is not usable, construct via NewUser or
// UserFromDocument.
type User struct {
	key      string
	username string

	passwordMethod string
	passwordSalt   string
	passwordHash   string

	active bool
	source Source

	databases map[string]DatabaseContext
	roles     map[string]struct{}

	configData types.Document
	userData   types.Document
}

// NewUser constructs an account with a freshly computed password digest,
// active and without grants. The persistence key stays empty until the
// user is first stored.
func NewUser(hasher PasswordHasher, username, password string, source Source) (User, error) {
	if username == "" {
		return User{}, errors.NewValidationError("username must not be empty")
	}
	method, salt, digest, err := hasher.Hash(password)
	if err != nil {
		return User{}, err
	}
	return User{
		username:       username,
		passwordMethod: method,
		passwordSalt:   salt,
		passwordHash:   digest,
		active:         true,
		source:         source,
		databases:      make(map[string]DatabaseContext),
		roles:          make(map[string]struct{}),
	}, nil
}

// Accessors

// Key returns the persistence identity, empty until first stored
func (u *User) Key() string { return u.key }

// Username returns the unique lookup name
func (u *User) Username() string { return u.username }

// PasswordMethod returns the stored hash method
func (u *User) PasswordMethod() string { return u.passwordMethod }

// PasswordSalt returns the stored salt
func (u *User) PasswordSalt() string { return u.passwordSalt }

// PasswordHash returns the stored digest
func (u *User) PasswordHash() string { return u.passwordHash }

// IsActive reports whether the account may authenticate and hold rights
func (u *User) IsActive() bool { return u.active }

// Source reports where the account's truth lives
func (u *User) Source() Source { return u.source }

// Roles returns the role names this user inherits from
func (u *User) Roles() []string {
	out := make([]string, 0, len(u.roles))
	for name := range u.roles {
		out = append(out, name)
	}
	return out
}

// SetActive toggles the activation flag
func (u *User) SetActive(active bool) { u.active = active }

// SetRoles replaces the role membership set
func (u *User) SetRoles(roles []string) {
	u.roles = make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if r != "" {
			u.roles[r] = struct{}{}
		}
	}
}

// CheckPassword verifies candidate against the stored digest. A malformed
// stored triple never matches and never fails.
func (u *User) CheckPassword(hasher PasswordHasher, candidate string) bool {
	return hasher.Verify(candidate, u.passwordMethod, u.passwordSalt, u.passwordHash)
}

// UpdatePassword regenerates the stored password triple. Activation and
// grants are untouched.
func (u *User) UpdatePassword(hasher PasswordHasher, password string) error {
	method, salt, digest, err := hasher.Hash(password)
	if err != nil {
		return err
	}
	u.passwordMethod = method
	u.passwordSalt = salt
	u.passwordHash = digest
	return nil
}

// GrantDatabase grants level on a database. The wildcard "*" is a valid
// database name. Granting None removes the whole entry instead.
func (u *User) GrantDatabase(dbname string, level AccessLevel) {
	if level == None {
		u.RemoveDatabase(dbname)
		return
	}
	ctx, ok := u.databases[dbname]
	if !ok {
		ctx = DatabaseContext{collections: make(map[string]AccessLevel)}
	}
	ctx.ownLevel = level
	u.databases[dbname] = ctx
}

// RemoveDatabase deletes the grant entry for a database including all of
// its per-collection entries.
func (u *User) RemoveDatabase(dbname string) {
	delete(u.databases, dbname)
}

// GrantCollection grants level on a collection. "*" is valid for both the
// database and the collection; "*"/"*" is the blanket root-level grant.
// Granting None removes the collection entry instead.
func (u *User) GrantCollection(dbname, collection string, level AccessLevel) {
	ctx, ok := u.databases[dbname]
	if !ok {
		if level == None {
			return
		}
		ctx = DatabaseContext{collections: make(map[string]AccessLevel)}
	}
	if level == None {
		delete(ctx.collections, collection)
	} else {
		ctx.collections[collection] = level
	}
	u.databases[dbname] = ctx
}

// RemoveCollection removes one collection entry; a no-op if the database
// has no context or the entry is absent.
func (u *User) RemoveCollection(dbname, collection string) {
	if ctx, ok := u.databases[dbname]; ok {
		delete(ctx.collections, collection)
	}
}

// DatabaseAuthLevel resolves the access level for a database, falling back
// to the "*" entry when the database has no specific entry.
func (u *User) DatabaseAuthLevel(dbname string) AccessLevel {
	if ctx, ok := u.databases[dbname]; ok {
		return ctx.ownLevel
	}
	if ctx, ok := u.databases[Wildcard]; ok {
		return ctx.ownLevel
	}
	return None
}

// CollectionAuthLevel resolves the access level for a collection. Within
// the most specific database context present (exact, then "*") the chain is
// exact collection entry, "*" collection entry, then the context's own
// database level. No context at all resolves to None.
func (u *User) CollectionAuthLevel(dbname, collection string) AccessLevel {
	if ctx, ok := u.databases[dbname]; ok {
		return ctx.collectionLevel(collection)
	}
	if ctx, ok := u.databases[Wildcard]; ok {
		return ctx.collectionLevel(collection)
	}
	return None
}

// HasSpecificDatabase reports whether an explicit (non-wildcard-derived)
// entry exists for dbname. Used by management APIs, not by resolution.
func (u *User) HasSpecificDatabase(dbname string) bool {
	_, ok := u.databases[dbname]
	return ok
}

// HasSpecificCollection reports whether an explicit collection entry exists
func (u *User) HasSpecificCollection(dbname, collection string) bool {
	ctx, ok := u.databases[dbname]
	if !ok {
		return false
	}
	_, ok = ctx.collections[collection]
	return ok
}

// ConfigData returns the opaque per-user configuration blob
func (u *User) ConfigData() types.Document { return u.configData }

// SetConfigData replaces the opaque per-user configuration blob
func (u *User) SetConfigData(data types.Document) { u.configData = data }

// UserData returns the opaque per-user data blob
func (u *User) UserData() types.Document { return u.userData }

// SetUserData replaces the opaque per-user data blob
func (u *User) SetUserData(data types.Document) { u.userData = data }

// clone returns a deep copy so cached entries never share grant maps with
// values handed to callers or mutation callbacks.
func (u *User) clone() User {
	c := *u
	c.databases = make(map[string]DatabaseContext, len(u.databases))
	for db, ctx := range u.databases {
		colls := make(map[string]AccessLevel, len(ctx.collections))
		for name, lvl := range ctx.collections {
			colls[name] = lvl
		}
		c.databases[db] = DatabaseContext{ownLevel: ctx.ownLevel, collections: colls}
	}
	c.roles = make(map[string]struct{}, len(u.roles))
	for r := range u.roles {
		c.roles[r] = struct{}{}
	}
	c.configData = cloneDocument(u.configData)
	c.userData = cloneDocument(u.userData)
	return c
}

// cloneDocument deep-copies a data blob so documents handed to callers
// never alias cached state.
func cloneDocument(doc types.Document) types.Document {
	if doc == nil {
		return nil
	}
	out := make(types.Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

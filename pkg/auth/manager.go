package auth

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"

	"github.com/cofferdb/coffer/pkg/errors"
	"github.com/cofferdb/coffer/pkg/interfaces"
	"github.com/cofferdb/coffer/pkg/logger"
	"github.com/cofferdb/coffer/pkg/metrics"
	"github.com/cofferdb/coffer/pkg/types"
)

// DefaultRoleResolutionDepth caps role expansion at user -> role -> role.
// Role membership graphs may contain cycles; beyond the cap a role
// contributes None instead of failing the query.
const DefaultRoleResolutionDepth = 2

const storeFetchRetries = 3

// UserCallback receives a mutable user inside UpdateUser/EnumerateUsers.
// It runs while the exclusive cache lock is held: nested permission queries
// from inside a callback must use the NoLock variants.
type UserCallback func(u *User) error

// UserMap maps usernames to cached user entries
type UserMap map[string]User

// ManagerOptions configures a UserManager
type ManagerOptions struct {
	// Store is the persistent user collection. Required.
	Store UserStore

	// Handler is the optional external directory source
	Handler Handler

	// QueryRegistry, when set, is told to drop cached query plans after
	// permission-affecting mutations
	QueryRegistry QueryRegistry

	// Hasher computes and verifies password digests. Defaults to
	// DefaultHasher.
	Hasher PasswordHasher

	// RoleResolutionDepth overrides DefaultRoleResolutionDepth when > 0
	RoleResolutionDepth int

	Logger  interfaces.Logger
	Metrics interfaces.Metrics
}

// UserManager is the sole authority mediating between callers and the
// persisted or directory-provided truth about accounts and grants. It
// caches users in memory and reloads lazily: any public operation that
// observes the outdated flag refreshes the cache first, with a dedicated
// reload mutex guaranteeing at most one reload in flight.
type UserManager struct {
	store    UserStore
	handler  Handler
	registry QueryRegistry
	hasher   PasswordHasher
	maxDepth int

	log   interfaces.Logger
	stats interfaces.Metrics

	// lock guards users; loadMu deduplicates concurrent reloads so a slow
	// store round trip does not hold the cache lock longer than the swap.
	lock     sync.RWMutex
	loadMu   sync.Mutex
	outdated atomic.Bool

	users UserMap
}

// NewUserManager creates the manager with an empty cache marked outdated,
// so the first operation populates it from the store.
func NewUserManager(opts ManagerOptions) (*UserManager, error) {
	if opts.Store == nil {
		return nil, errors.NewValidationError("user store is required")
	}
	if opts.Hasher == nil {
		opts.Hasher = DefaultHasher{}
	}
	if opts.RoleResolutionDepth <= 0 {
		opts.RoleResolutionDepth = DefaultRoleResolutionDepth
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger("info")
	}
	if opts.Metrics == nil {
		opts.Metrics = &metrics.NoOpMetrics{}
	}

	m := &UserManager{
		store:    opts.Store,
		handler:  opts.Handler,
		registry: opts.QueryRegistry,
		hasher:   opts.Hasher,
		maxDepth: opts.RoleResolutionDepth,
		log:      opts.Logger,
		stats:    opts.Metrics,
		users:    make(UserMap),
	}
	m.outdated.Store(true)
	return m, nil
}

// Outdate marks the cache stale. Cheap and callable from any goroutine,
// e.g. a cluster-membership watcher; the next operation reloads.
func (m *UserManager) Outdate() {
	m.outdated.Store(true)
}

// ReloadAllUsers forces a reload before the next resolution
func (m *UserManager) ReloadAllUsers(ctx context.Context) error {
	m.Outdate()
	return m.refreshIfNeeded(ctx)
}

// refreshIfNeeded reloads the cache when the outdated flag is set. The flag
// is re-checked after acquiring the reload mutex: a concurrent reloader may
// already have refreshed, in which case this is a no-op.
func (m *UserManager) refreshIfNeeded(ctx context.Context) error {
	if !m.outdated.Load() {
		return nil
	}
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if !m.outdated.Load() {
		return nil
	}
	if err := m.loadFromDB(ctx); err != nil {
		return err
	}
	m.outdated.Store(false)
	return nil
}

// loadFromDB reads every user document from the store, parses it and swaps
// the cache wholesale. Corrupt documents are skipped with a reported error,
// never fatal; an empty result is a brand-new installation. Callers must
// hold loadMu.
func (m *UserManager) loadFromDB(ctx context.Context) error {
	var docs []types.Document
	fetch := func() error {
		var err error
		docs, err = m.store.FetchAll(ctx)
		return err
	}
	err := backoff.Retry(fetch, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), storeFetchRetries), ctx))
	if err != nil {
		m.log.Error("failed to load users from store", err)
		return errors.NewPersistenceError("failed to load users", err)
	}

	fresh := make(UserMap, len(docs))
	for _, doc := range docs {
		user, err := UserFromDocument(doc)
		if err != nil {
			m.log.Error("skipping unparseable user document", err)
			m.stats.Counter("coffer_auth_skipped_documents_total", 1, nil)
			continue
		}
		fresh[user.username] = user
	}

	// External accounts exist only while the directory confirms them.
	// Re-confirm every one we know about, whether it was cached or came
	// back out of a persisted document, and drop the unconfirmed.
	external := make(map[string]struct{})
	for _, name := range m.externalUsernames() {
		external[name] = struct{}{}
	}
	for name, user := range fresh {
		if user.source == SourceExternal {
			external[name] = struct{}{}
		}
	}
	for name := range external {
		if m.handler == nil {
			delete(fresh, name)
			continue
		}
		user, err := m.handler.Refresh(ctx, name)
		if err != nil {
			if !errors.IsNotFound(err) {
				m.log.Warn("directory refresh failed, dropping external user",
					map[string]interface{}{"user": name, "error": err.Error()})
			}
			delete(fresh, name)
			continue
		}
		fresh[user.username] = user
	}

	m.lock.Lock()
	m.users = fresh
	m.lock.Unlock()

	m.stats.Counter("coffer_auth_reloads_total", 1, nil)
	m.log.Debug("reloaded user cache", map[string]interface{}{"users": len(fresh)})
	return nil
}

func (m *UserManager) externalUsernames() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	var names []string
	for name, user := range m.users {
		if user.source == SourceExternal {
			names = append(names, name)
		}
	}
	return names
}

// CreateRootUser inserts the well-known administrative account with a
// blanket "*"/"*" grant. Fails with a conflict if the account exists.
func (m *UserManager) CreateRootUser(ctx context.Context, username, password string) error {
	if err := m.refreshIfNeeded(ctx); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.users[username]; ok {
		return errors.NewAlreadyExistsError("root user")
	}

	root, err := NewUser(m.hasher, username, password, SourceCollection)
	if err != nil {
		return err
	}
	root.GrantDatabase(Wildcard, ReadWrite)
	root.GrantCollection(Wildcard, Wildcard, ReadWrite)

	if err := m.commitUserLocked(ctx, &root); err != nil {
		return err
	}
	m.log.Info("created root user", map[string]interface{}{"user": username})
	return nil
}

// StoreUser creates a new internal account (fails if it exists and replace
// is false) or overwrites an existing one's credentials and activation flag
// (fails if it does not exist and replace is true). Grants of a replaced
// user are preserved.
func (m *UserManager) StoreUser(ctx context.Context, replace bool, username, password string, active bool) error {
	if username == "" {
		return errors.NewValidationError("username must not be empty")
	}
	if err := m.refreshIfNeeded(ctx); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	existing, exists := m.users[username]
	if exists && !replace {
		return errors.NewAlreadyExistsError("user")
	}
	if !exists && replace {
		return errors.NewNotFoundError("user")
	}
	if exists && existing.source == SourceExternal {
		return errors.NewConflictError("cannot overwrite externally sourced user")
	}

	var user User
	if exists {
		user = existing.clone()
		if err := user.UpdatePassword(m.hasher, password); err != nil {
			return err
		}
		user.SetActive(active)
	} else {
		var err error
		user, err = NewUser(m.hasher, username, password, SourceCollection)
		if err != nil {
			return err
		}
		user.SetActive(active)
	}

	return m.commitUserLocked(ctx, &user)
}

// commitUserLocked persists user through the store and, only on success,
// commits it to the cache. Callers must hold the exclusive cache lock.
func (m *UserManager) commitUserLocked(ctx context.Context, user *User) error {
	key, err := m.store.Upsert(ctx, user.ToDocument())
	if err != nil {
		m.log.Error("failed to persist user", err, map[string]interface{}{"user": user.username})
		return err
	}
	user.key = key
	m.users[user.username] = *user
	m.notifyPermissionChange()
	return nil
}

func (m *UserManager) notifyPermissionChange() {
	if m.registry != nil {
		m.registry.InvalidateAll()
	}
	m.stats.Counter("coffer_auth_mutations_total", 1, nil)
}

// EnumerateUsers applies callback to every cached user under the exclusive
// lock, persisting each mutation. A callback error aborts the enumeration.
func (m *UserManager) EnumerateUsers(ctx context.Context, callback UserCallback) error {
	if err := m.refreshIfNeeded(ctx); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	names := make([]string, 0, len(m.users))
	for name := range m.users {
		names = append(names, name)
	}
	for _, name := range names {
		entry := m.users[name]
		user := entry.clone()
		if err := callback(&user); err != nil {
			return err
		}
		if err := m.commitUserLocked(ctx, &user); err != nil {
			return err
		}
	}
	return nil
}

// UpdateUser applies callback to one user under the exclusive lock and
// persists the result. The cache is only updated if persistence succeeds.
func (m *UserManager) UpdateUser(ctx context.Context, username string, callback UserCallback) error {
	if err := m.refreshIfNeeded(ctx); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	existing, ok := m.users[username]
	if !ok {
		return errors.NewNotFoundError("user")
	}

	user := existing.clone()
	if err := callback(&user); err != nil {
		return err
	}
	return m.commitUserLocked(ctx, &user)
}

// AccessUser reads one user under the shared lock without modifying it.
// The callback receives a copy; mutations to it are discarded.
func (m *UserManager) AccessUser(ctx context.Context, username string, callback UserCallback) error {
	if err := m.refreshIfNeeded(ctx); err != nil {
		return err
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	existing, ok := m.users[username]
	if !ok {
		return errors.NewNotFoundError("user")
	}
	user := existing.clone()
	return callback(&user)
}

// RemoveUser deletes one user from the cache and the store. Removing an
// unknown user reports NotFound rather than being silently ignored.
func (m *UserManager) RemoveUser(ctx context.Context, username string) error {
	if err := m.refreshIfNeeded(ctx); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	user, ok := m.users[username]
	if !ok {
		return errors.NewNotFoundError("user")
	}
	if user.source == SourceExternal {
		return errors.NewConflictError("cannot remove externally sourced user")
	}

	if user.key != "" {
		if err := m.store.RemoveByKey(ctx, user.key); err != nil && !errors.IsNotFound(err) {
			return err
		}
	}
	delete(m.users, username)
	m.notifyPermissionChange()
	return nil
}

// RemoveAllUsers clears the cache and the store
func (m *UserManager) RemoveAllUsers(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if err := m.store.RemoveAll(ctx); err != nil {
		return err
	}
	m.users = make(UserMap)
	m.notifyPermissionChange()
	return nil
}

// AllUsers returns the document form of every cached user with the
// credential digests stripped, for API exposure.
func (m *UserManager) AllUsers(ctx context.Context) ([]types.Document, error) {
	if err := m.refreshIfNeeded(ctx); err != nil {
		return nil, err
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	out := make([]types.Document, 0, len(m.users))
	for name := range m.users {
		user := m.users[name]
		out = append(out, stripCredentials(user.ToDocument()))
	}
	return out, nil
}

// SerializeUser returns one user's document form without credentials
func (m *UserManager) SerializeUser(ctx context.Context, username string) (types.Document, error) {
	if err := m.refreshIfNeeded(ctx); err != nil {
		return nil, err
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	user, ok := m.users[username]
	if !ok {
		return nil, errors.NewNotFoundError("user")
	}
	return stripCredentials(user.ToDocument()), nil
}

func stripCredentials(doc types.Document) types.Document {
	delete(doc, fieldAuthData)
	return doc
}

// GetConfigData returns the opaque per-user configuration blob
func (m *UserManager) GetConfigData(ctx context.Context, username string) (types.Document, error) {
	if err := m.refreshIfNeeded(ctx); err != nil {
		return nil, err
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	user, ok := m.users[username]
	if !ok {
		return nil, errors.NewNotFoundError("user")
	}
	return cloneDocument(user.configData), nil
}

// SetConfigData replaces the opaque per-user configuration blob
func (m *UserManager) SetConfigData(ctx context.Context, username string, data types.Document) error {
	return m.UpdateUser(ctx, username, func(u *User) error {
		u.SetConfigData(data)
		return nil
	})
}

// GetUserData returns the opaque per-user data blob
func (m *UserManager) GetUserData(ctx context.Context, username string) (types.Document, error) {
	if err := m.refreshIfNeeded(ctx); err != nil {
		return nil, err
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	user, ok := m.users[username]
	if !ok {
		return nil, errors.NewNotFoundError("user")
	}
	return cloneDocument(user.userData), nil
}

// SetUserData replaces the opaque per-user data blob
func (m *UserManager) SetUserData(ctx context.Context, username string, data types.Document) error {
	return m.UpdateUser(ctx, username, func(u *User) error {
		u.SetUserData(data)
		return nil
	})
}

// CheckPassword verifies credentials. It fails closed: an unknown account,
// an inactive account and a wrong password are all indistinguishable false
// results, so callers cannot enumerate accounts through this path. Unknown
// accounts are offered to the external directory when one is configured;
// confirmed directory accounts are materialized into the cache.
func (m *UserManager) CheckPassword(ctx context.Context, username, password string) bool {
	if err := m.refreshIfNeeded(ctx); err != nil {
		m.log.Error("password check aborted, cache refresh failed", err)
		return false
	}

	m.lock.RLock()
	user, ok := m.users[username]
	m.lock.RUnlock()

	if ok && user.source == SourceCollection {
		if !user.active {
			m.stats.Counter("coffer_auth_password_failures_total", 1, nil)
			return false
		}
		if user.CheckPassword(m.hasher, password) {
			return true
		}
		m.stats.Counter("coffer_auth_password_failures_total", 1, nil)
		return false
	}

	if m.handler == nil {
		m.stats.Counter("coffer_auth_password_failures_total", 1, nil)
		return false
	}

	// Unknown or externally sourced account: the directory decides.
	confirmed, err := m.handler.Authenticate(ctx, username, password)
	if err != nil || !confirmed.active {
		m.stats.Counter("coffer_auth_password_failures_total", 1, nil)
		return false
	}

	m.lock.Lock()
	m.users[confirmed.username] = confirmed
	m.lock.Unlock()
	return true
}

// ConfiguredDatabaseAuthLevel resolves the stored grant level for a
// database, including role contributions
func (m *UserManager) ConfiguredDatabaseAuthLevel(ctx context.Context, username, dbname string) AccessLevel {
	if err := m.refreshIfNeeded(ctx); err != nil {
		m.log.Error("database resolution failed closed, cache refresh failed", err)
		return None
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.databaseAuthLevelInternal(username, dbname, 0)
}

// ConfiguredCollectionAuthLevel resolves the stored grant level for a
// collection, including role contributions
func (m *UserManager) ConfiguredCollectionAuthLevel(ctx context.Context, username, dbname, collection string) AccessLevel {
	if err := m.refreshIfNeeded(ctx); err != nil {
		m.log.Error("collection resolution failed closed, cache refresh failed", err)
		return None
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.collectionAuthLevelInternal(username, dbname, collection, 0)
}

// CanUseDatabase answers "may username act at the returned level on this
// database". It never fails: unknown principals resolve to None.
func (m *UserManager) CanUseDatabase(ctx context.Context, username, dbname string) AccessLevel {
	m.stats.Counter("coffer_auth_resolutions_total", 1, map[string]string{"scope": "database"})
	return m.ConfiguredDatabaseAuthLevel(ctx, username, dbname)
}

// CanUseCollection answers "may username act at the returned level on this
// collection". It never fails: unknown principals resolve to None.
func (m *UserManager) CanUseCollection(ctx context.Context, username, dbname, collection string) AccessLevel {
	m.stats.Counter("coffer_auth_resolutions_total", 1, map[string]string{"scope": "collection"})
	return m.ConfiguredCollectionAuthLevel(ctx, username, dbname, collection)
}

// CanUseDatabaseNoLock resolves a database level assuming the caller's
// stack frame already holds the cache lock, for use inside UpdateUser and
// EnumerateUsers callbacks. Calling it unlocked is a contract violation.
func (m *UserManager) CanUseDatabaseNoLock(username, dbname string) AccessLevel {
	return m.databaseAuthLevelInternal(username, dbname, 0)
}

// CanUseCollectionNoLock resolves a collection level assuming the caller's
// stack frame already holds the cache lock.
func (m *UserManager) CanUseCollectionNoLock(username, dbname, collection string) AccessLevel {
	return m.collectionAuthLevelInternal(username, dbname, collection, 0)
}

// databaseAuthLevelInternal runs the resolution algorithm at database
// scope. Callers must hold the cache lock in at least shared mode.
func (m *UserManager) databaseAuthLevelInternal(username, dbname string, depth int) AccessLevel {
	user, ok := m.users[username]
	if !ok {
		return None
	}
	if depth == 0 && !user.active {
		return None
	}

	level := user.DatabaseAuthLevel(dbname)
	if depth >= m.maxDepth {
		return level
	}
	for role := range user.roles {
		level = Merge(level, m.databaseAuthLevelInternal(role, dbname, depth+1))
		if level == ReadWrite {
			break
		}
	}
	return level
}

// collectionAuthLevelInternal runs the resolution algorithm at collection
// scope. Callers must hold the cache lock in at least shared mode.
func (m *UserManager) collectionAuthLevelInternal(username, dbname, collection string, depth int) AccessLevel {
	user, ok := m.users[username]
	if !ok {
		return None
	}
	if depth == 0 && !user.active {
		return None
	}

	level := user.CollectionAuthLevel(dbname, collection)
	if depth >= m.maxDepth {
		return level
	}
	for role := range user.roles {
		level = Merge(level, m.collectionAuthLevelInternal(role, dbname, collection, depth+1))
		if level == ReadWrite {
			break
		}
	}
	return level
}

// SetAuthInfo overwrites the cached users wholesale and marks the cache
// fresh. Test-only escape hatch; nothing is persisted.
func (m *UserManager) SetAuthInfo(users UserMap) {
	m.lock.Lock()
	fresh := make(UserMap, len(users))
	for name, user := range users {
		fresh[name] = user.clone()
	}
	m.users = fresh
	m.lock.Unlock()
	m.outdated.Store(false)
}

package auth

import (
	"fmt"

	"github.com/cofferdb/coffer/pkg/errors"
	"github.com/cofferdb/coffer/pkg/types"
)

// Document field names of the persisted user record
const (
	fieldKey         = "_key"
	fieldUser        = "user"
	fieldActive      = "active"
	fieldAuthData    = "authData"
	fieldSimple      = "simple"
	fieldMethod      = "method"
	fieldSalt        = "salt"
	fieldHash        = "hash"
	fieldSource      = "source"
	fieldDatabases   = "databases"
	fieldPermissions = "permissions"
	fieldReadWrite   = "read/write"
	fieldCollections = "collections"
	fieldRoles       = "roles"
	fieldConfigData  = "configData"
	fieldUserData    = "userData"
)

// ToDocument serializes the user into the persisted record shape. Every
// field the kernel manages round-trips through UserFromDocument.
func (u *User) ToDocument() types.Document {
	databases := make(map[string]interface{}, len(u.databases))
	for dbname, ctx := range u.databases {
		collections := make(map[string]interface{}, len(ctx.collections))
		for name, lvl := range ctx.collections {
			collections[name] = map[string]interface{}{
				fieldPermissions: map[string]interface{}{fieldReadWrite: lvl.String()},
			}
		}
		databases[dbname] = map[string]interface{}{
			fieldPermissions: map[string]interface{}{fieldReadWrite: ctx.ownLevel.String()},
			fieldCollections: collections,
		}
	}

	roles := make([]interface{}, 0, len(u.roles))
	for name := range u.roles {
		roles = append(roles, name)
	}

	doc := types.Document{
		fieldUser:   u.username,
		fieldActive: u.active,
		fieldAuthData: map[string]interface{}{
			fieldSimple: map[string]interface{}{
				fieldMethod: u.passwordMethod,
				fieldSalt:   u.passwordSalt,
				fieldHash:   u.passwordHash,
			},
			fieldSource: u.source.String(),
		},
		fieldDatabases: databases,
		fieldRoles:     roles,
	}
	if u.key != "" {
		doc[fieldKey] = u.key
	}
	if u.configData != nil {
		doc[fieldConfigData] = cloneDocument(u.configData)
	}
	if u.userData != nil {
		doc[fieldUserData] = cloneDocument(u.userData)
	}
	return doc
}

// UserFromDocument parses a persisted user record. Missing or mistyped
// required fields fail with a validation error; unknown fields are ignored
// for forward compatibility.
func UserFromDocument(doc types.Document) (User, error) {
	username, ok := doc[fieldUser].(string)
	if !ok || username == "" {
		return User{}, errors.NewMissingFieldError(fieldUser)
	}
	active, ok := doc[fieldActive].(bool)
	if !ok {
		return User{}, errors.NewMissingFieldError(fieldActive)
	}

	authData, ok := toObject(doc[fieldAuthData])
	if !ok {
		return User{}, errors.NewMissingFieldError(fieldAuthData)
	}
	simple, ok := toObject(authData[fieldSimple])
	if !ok {
		return User{}, errors.NewInvalidFormatError(fieldAuthData, "object with 'simple' credentials")
	}
	method, ok := simple[fieldMethod].(string)
	if !ok || method == "" {
		return User{}, errors.NewMissingFieldError(fieldMethod)
	}
	hash, ok := simple[fieldHash].(string)
	if !ok {
		return User{}, errors.NewMissingFieldError(fieldHash)
	}
	salt, _ := simple[fieldSalt].(string)

	u := User{
		username:       username,
		active:         active,
		passwordMethod: method,
		passwordSalt:   salt,
		passwordHash:   hash,
		databases:      make(map[string]DatabaseContext),
		roles:          make(map[string]struct{}),
	}

	if key, ok := doc[fieldKey].(string); ok {
		u.key = key
	}
	if src, ok := authData[fieldSource].(string); ok {
		u.source = ParseSource(src)
	}

	if raw, present := doc[fieldDatabases]; present {
		databases, ok := toObject(raw)
		if !ok {
			return User{}, errors.NewInvalidFormatError(fieldDatabases, "object keyed by database name")
		}
		for dbname, entry := range databases {
			ctx, err := databaseContextFromDocument(dbname, entry)
			if err != nil {
				return User{}, err
			}
			u.databases[dbname] = ctx
		}
	}

	if raw, present := doc[fieldRoles]; present {
		roles, ok := raw.([]interface{})
		if !ok {
			return User{}, errors.NewInvalidFormatError(fieldRoles, "array of role names")
		}
		for _, r := range roles {
			name, ok := r.(string)
			if !ok {
				return User{}, errors.NewInvalidFormatError(fieldRoles, "array of role names")
			}
			if name != "" {
				u.roles[name] = struct{}{}
			}
		}
	}

	if raw, ok := toObject(doc[fieldConfigData]); ok {
		u.configData = cloneDocument(raw)
	}
	if raw, ok := toObject(doc[fieldUserData]); ok {
		u.userData = cloneDocument(raw)
	}

	return u, nil
}

func databaseContextFromDocument(dbname string, entry interface{}) (DatabaseContext, error) {
	obj, ok := toObject(entry)
	if !ok {
		return DatabaseContext{}, errors.NewInvalidFormatError(
			fmt.Sprintf("databases.%s", dbname), "object with permissions")
	}
	ctx := DatabaseContext{
		ownLevel:    permissionLevel(obj[fieldPermissions]),
		collections: make(map[string]AccessLevel),
	}
	if raw, present := obj[fieldCollections]; present {
		collections, ok := toObject(raw)
		if !ok {
			return DatabaseContext{}, errors.NewInvalidFormatError(
				fmt.Sprintf("databases.%s.collections", dbname), "object keyed by collection name")
		}
		for name, centry := range collections {
			cobj, ok := toObject(centry)
			if !ok {
				return DatabaseContext{}, errors.NewInvalidFormatError(
					fmt.Sprintf("databases.%s.collections.%s", dbname, name), "object with permissions")
			}
			if lvl := permissionLevel(cobj[fieldPermissions]); lvl != None {
				ctx.collections[name] = lvl
			}
		}
	}
	return ctx, nil
}

func permissionLevel(raw interface{}) AccessLevel {
	perms, ok := toObject(raw)
	if !ok {
		return None
	}
	lvl, _ := perms[fieldReadWrite].(string)
	return ParseAccessLevel(lvl)
}

func toObject(raw interface{}) (map[string]interface{}, bool) {
	v, ok := raw.(map[string]interface{})
	return v, ok
}

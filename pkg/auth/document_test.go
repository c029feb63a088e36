package auth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cofferdb/coffer/pkg/errors"
	"github.com/cofferdb/coffer/pkg/types"
)

func TestDocument_RoundTrip(t *testing.T) {
	u := newTestUser(t, "alice")
	u.key = "key-123"
	u.SetActive(false)
	u.SetRoles([]string{"reader", "auditor"})
	u.GrantDatabase("sales", ReadWrite)
	u.GrantCollection("sales", "orders", ReadOnly)
	u.GrantCollection("sales", Wildcard, ReadWrite)
	u.GrantDatabase(Wildcard, ReadOnly)
	u.SetConfigData(types.Document{"theme": "dark"})
	u.SetUserData(types.Document{"quota": "10g"})

	parsed, err := UserFromDocument(u.ToDocument())
	require.NoError(t, err)

	assert.Equal(t, u.Key(), parsed.Key())
	assert.Equal(t, u.Username(), parsed.Username())
	assert.Equal(t, u.IsActive(), parsed.IsActive())
	assert.Equal(t, u.Source(), parsed.Source())
	assert.Equal(t, u.PasswordMethod(), parsed.PasswordMethod())
	assert.Equal(t, u.PasswordSalt(), parsed.PasswordSalt())
	assert.Equal(t, u.PasswordHash(), parsed.PasswordHash())
	assert.ElementsMatch(t, u.Roles(), parsed.Roles())

	assert.Equal(t, ReadWrite, parsed.DatabaseAuthLevel("sales"))
	assert.Equal(t, ReadOnly, parsed.CollectionAuthLevel("sales", "orders"))
	assert.Equal(t, ReadWrite, parsed.CollectionAuthLevel("sales", "anything"))
	assert.Equal(t, ReadOnly, parsed.DatabaseAuthLevel("other"))
	assert.Equal(t, types.Document{"theme": "dark"}, parsed.ConfigData())
	assert.Equal(t, types.Document{"quota": "10g"}, parsed.UserData())
}

func TestDocument_RoundTripThroughJSON(t *testing.T) {
	// the repository stores documents as JSON, so the shape must survive
	// an encode/decode cycle too
	u := newTestUser(t, "bob")
	u.GrantCollection(Wildcard, Wildcard, ReadWrite)
	u.SetRoles([]string{"admin"})

	payload, err := json.Marshal(u.ToDocument())
	require.NoError(t, err)

	var doc types.Document
	require.NoError(t, json.Unmarshal(payload, &doc))

	parsed, err := UserFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, ReadWrite, parsed.CollectionAuthLevel("db", "coll"))
	assert.ElementsMatch(t, []string{"admin"}, parsed.Roles())
}

func TestUserFromDocument_MissingFields(t *testing.T) {
	valid := func() types.Document {
		u := newTestUser(t, "alice")
		return u.ToDocument()
	}

	doc := valid()
	delete(doc, "user")
	_, err := UserFromDocument(doc)
	assert.True(t, errors.IsValidation(err))

	doc = valid()
	doc["user"] = ""
	_, err = UserFromDocument(doc)
	assert.True(t, errors.IsValidation(err))

	doc = valid()
	delete(doc, "active")
	_, err = UserFromDocument(doc)
	assert.True(t, errors.IsValidation(err))

	doc = valid()
	doc["active"] = "yes"
	_, err = UserFromDocument(doc)
	assert.True(t, errors.IsValidation(err))

	doc = valid()
	delete(doc, "authData")
	_, err = UserFromDocument(doc)
	assert.True(t, errors.IsValidation(err))

	doc = valid()
	doc["databases"] = []interface{}{"not", "an", "object"}
	_, err = UserFromDocument(doc)
	assert.True(t, errors.IsValidation(err))

	doc = valid()
	doc["roles"] = "not-an-array"
	_, err = UserFromDocument(doc)
	assert.True(t, errors.IsValidation(err))
}

func TestUserFromDocument_UnknownFieldsIgnored(t *testing.T) {
	u := newTestUser(t, "alice")
	doc := u.ToDocument()
	doc["futureField"] = map[string]interface{}{"nested": true}
	doc["anotherOne"] = 42

	parsed, err := UserFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, "alice", parsed.Username())

	// unknown fields never round-trip back out
	out := parsed.ToDocument()
	assert.NotContains(t, out, "futureField")
	assert.NotContains(t, out, "anotherOne")
}

func TestUserFromDocument_DefaultsAndSource(t *testing.T) {
	u := newTestUser(t, "alice")
	doc := u.ToDocument()

	// key and salt are optional
	delete(doc, "_key")
	parsed, err := UserFromDocument(doc)
	require.NoError(t, err)
	assert.Empty(t, parsed.Key())
	assert.Equal(t, SourceCollection, parsed.Source())

	authData := doc["authData"].(map[string]interface{})
	authData["source"] = "EXTERNAL"
	parsed, err = UserFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, SourceExternal, parsed.Source())
}

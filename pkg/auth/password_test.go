package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHasher_RoundTrip(t *testing.T) {
	h := testHasher()

	method, salt, digest, err := h.Hash("secret")
	require.NoError(t, err)
	assert.Equal(t, MethodBcrypt, method)
	assert.Empty(t, salt)
	require.NotEmpty(t, digest)

	assert.True(t, h.Verify("secret", method, salt, digest))
	assert.False(t, h.Verify("wrong", method, salt, digest))
}

func TestDefaultHasher_UniqueDigests(t *testing.T) {
	h := testHasher()

	_, _, first, err := h.Hash("secret")
	require.NoError(t, err)
	_, _, second, err := h.Hash("secret")
	require.NoError(t, err)

	// bcrypt salts internally, so equal inputs hash differently
	assert.NotEqual(t, first, second)
}

func TestDefaultHasher_MalformedInputs(t *testing.T) {
	h := testHasher()

	assert.False(t, h.Verify("secret", MethodBcrypt, "", "garbage"))
	assert.False(t, h.Verify("secret", "unknown-method", "", "whatever"))
	assert.False(t, h.Verify("secret", MethodBcrypt, "", ""))
}

func TestPBKDF2Hasher_RoundTrip(t *testing.T) {
	h := PBKDF2Hasher{}

	method, salt, digest, err := h.Hash("secret")
	require.NoError(t, err)
	assert.Equal(t, MethodPBKDF2SHA256, method)
	require.NotEmpty(t, salt)
	require.NotEmpty(t, digest)

	assert.True(t, h.Verify("secret", method, salt, digest))
	assert.False(t, h.Verify("wrong", method, salt, digest))
	assert.False(t, h.Verify("secret", MethodBcrypt, salt, digest))
}

func TestPBKDF2Hasher_MalformedDigest(t *testing.T) {
	h := PBKDF2Hasher{}

	assert.False(t, h.Verify("secret", MethodPBKDF2SHA256, "aabb", "not-hex"))
	assert.False(t, h.Verify("secret", MethodPBKDF2SHA256, "aabb", "abcd")) // wrong length
}

func TestDefaultHasher_VerifiesLegacyPBKDF2(t *testing.T) {
	legacy := PBKDF2Hasher{}
	method, salt, digest, err := legacy.Hash("secret")
	require.NoError(t, err)

	// older user documents carry pbkdf2 triples; the default hasher must
	// still let those accounts in
	h := testHasher()
	assert.True(t, h.Verify("secret", method, salt, digest))
	assert.False(t, h.Verify("wrong", method, salt, digest))
}

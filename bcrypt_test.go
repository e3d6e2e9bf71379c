package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-auth-guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
			wantErr:  false,
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true,
		},
	}

	hasher := fastHasher()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := hasher.HashPassword(tt.password)

			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, auth.IsAuthError(err, auth.ErrNoEmptyString))
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NotEqual(t, tt.password, hash)
			assert.True(t, hasher.VerifyPassword(tt.password, hash))
		})
	}
}

func TestBcryptHasher_SaltsEveryHash(t *testing.T) {
	hasher := fastHasher()

	first, err := hasher.HashPassword("same-password")
	require.NoError(t, err)
	second, err := hasher.HashPassword("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, hasher.VerifyPassword("same-password", first))
	assert.True(t, hasher.VerifyPassword("same-password", second))
}

func TestBcryptHasher_VerifyPassword(t *testing.T) {
	hasher := fastHasher()
	password := "testPassword123!"
	hash, err := hasher.HashPassword(password)
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		want     bool
	}{
		{name: "Matching password", password: password, hash: hash, want: true},
		{name: "Wrong password", password: "wrongPassword", hash: hash, want: false},
		{name: "Prefix of password", password: "testPassword", hash: hash, want: false},
		{name: "Malformed hash", password: password, hash: "not-a-bcrypt-digest", want: false},
		{name: "Empty hash", password: password, hash: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasher.VerifyPassword(tt.password, tt.hash))
		})
	}
}

func TestNewBcryptHasher_Cost(t *testing.T) {
	assert.Equal(t, bcrypt.MinCost, auth.NewBcryptHasher(bcrypt.MinCost).Cost())
	assert.Equal(t, auth.DefaultPasswordCost, auth.NewBcryptHasher(0).Cost())
	assert.Equal(t, auth.DefaultPasswordCost, auth.NewBcryptHasher(bcrypt.MaxCost+1).Cost())

	hash, err := auth.NewBcryptHasher(5).HashPassword("secret")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 5, cost)
}

func TestHashPasswordPackageHelpers(t *testing.T) {
	hash, err := auth.HashPassword("package-level")
	require.NoError(t, err)

	assert.True(t, auth.ComparePasswordAndHash("package-level", hash))
	assert.False(t, auth.ComparePasswordAndHash("other", hash))
}

func TestRandomPasswordHash(t *testing.T) {
	hasher := fastHasher()

	digest := auth.RandomPasswordHash(hasher)
	require.NotEmpty(t, digest)

	_, err := bcrypt.Cost([]byte(digest))
	assert.NoError(t, err, "dummy digest must be a real bcrypt digest")
	assert.False(t, hasher.VerifyPassword("", digest))
	assert.False(t, hasher.VerifyPassword("password", digest))
}

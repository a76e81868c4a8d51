package util

import (
	"caseprep_backend/internal/model"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseJWT(t *testing.T) {
	user := &model.User{
		UUIDBase: model.UUIDBase{ID: "user-1"},
		Name:     "Ada",
		Email:    "ada@example.com",
		Role:     model.Admin,
	}

	token, err := GenerateJWT(user, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, model.Admin, claims.Role)
	assert.Equal(t, "ada@example.com", claims.Email)

	_, err = ParseJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestParseJWTExpired(t *testing.T) {
	user := &model.User{UUIDBase: model.UUIDBase{ID: "user-1"}, Email: "ada@example.com"}
	token, err := GenerateJWT(user, "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseJWT(token, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseJWTExternalSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "oauth|42",
		"email": "grace@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := ParseJWT(signed, "secret")
	require.NoError(t, err)
	assert.Equal(t, "oauth|42", claims.UserID)
	assert.Equal(t, model.Candidate, claims.Role)
}

func TestParseJWTRejectsIncompleteClaims(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "oauth|42"})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = ParseJWT(signed, "secret")
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x", "email": "x@example.com"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseJWT(unsigned, "secret")
	assert.Error(t, err)
}

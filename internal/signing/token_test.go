package signing_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/session"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/signing"
	"github.com/stretchr/testify/require"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{12}$`)

func TestMintToken(t *testing.T) {
	secret := "test-secret"
	at := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	t.Run("deterministic for identical inputs", func(t *testing.T) {
		a := signing.MintToken(secret, at, "Ana", "Diaz")
		b := signing.MintToken(secret, at, "Ana", "Diaz")
		require.Equal(t, a, b)
	})

	t.Run("shape is 12 lowercase hex chars", func(t *testing.T) {
		tok := signing.MintToken(secret, at, "Ana", "Diaz")
		require.Regexp(t, hexToken, tok)
	})

	t.Run("distinct identities differ", func(t *testing.T) {
		a := signing.MintToken(secret, at, "Ana", "Diaz")
		b := signing.MintToken(secret, at, "Bob", "Diaz")
		require.NotEqual(t, a, b)
	})

	t.Run("distinct instants differ", func(t *testing.T) {
		a := signing.MintToken(secret, at, "Ana", "Diaz")
		b := signing.MintToken(secret, at.Add(time.Second), "Ana", "Diaz")
		require.NotEqual(t, a, b)
	})

	t.Run("distinct secrets differ", func(t *testing.T) {
		a := signing.MintToken("secret-one", at, "Ana", "Diaz")
		b := signing.MintToken("secret-two", at, "Ana", "Diaz")
		require.NotEqual(t, a, b)
	})
}

func TestResolveToken(t *testing.T) {
	t.Run("valid token passes through", func(t *testing.T) {
		tok, err := signing.ResolveToken("0123456789ab")
		require.NoError(t, err)
		require.Equal(t, "0123456789ab", tok)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := signing.ResolveToken("0123")
		require.ErrorIs(t, err, session.ErrInvalidToken)
	})

	t.Run("non hex characters", func(t *testing.T) {
		_, err := signing.ResolveToken("0123456789zz")
		require.ErrorIs(t, err, session.ErrInvalidToken)
	})

	t.Run("uppercase rejected", func(t *testing.T) {
		_, err := signing.ResolveToken("0123456789AB")
		require.ErrorIs(t, err, session.ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := signing.ResolveToken("")
		require.ErrorIs(t, err, session.ErrInvalidToken)
	})
}

package cipher

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"accountd/internal/config"
)

func testConfig() config.CipherConfig {
	return config.CipherConfig{
		Algorithm:     "aes-256-cbc",
		Passphrase:    "test-encryption-secret",
		KeyLength:     32,
		KeyIterations: 10,
		IV:            "fb1f4b0a7daaada6cae678df32fad0f0",
	}
}

func TestRoundTrip(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	for _, plaintext := range []string{
		"JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP",
		"a",
		"exactly sixteen.",
	} {
		ct, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		_, err = hex.DecodeString(ct)
		require.NoError(t, err)

		got, err := c.Decrypt(ct)
		require.NoError(t, err)
		require.Equal(t, plaintext, got)
	}
}

func TestEncrypt_DeterministicUnderFixedIV(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	first, err := c.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	second, err := c.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDecrypt_RejectsMalformedInput(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	for _, input := range []string{
		"",
		"zz",
		"abcd", // not block aligned
	} {
		_, err := c.Decrypt(input)
		require.ErrorIs(t, err, ErrMalformedCiphertext, "input %q", input)
	}
}

func TestDecrypt_WrongPassphraseFailsPaddingCheck(t *testing.T) {
	c1, err := New(testConfig())
	require.NoError(t, err)
	cfg2 := testConfig()
	cfg2.Passphrase = "a-different-secret"
	c2, err := New(cfg2)
	require.NoError(t, err)

	ct, err := c1.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	got, err := c2.Decrypt(ct)
	if err == nil {
		// Padding can coincide by chance; the plaintext still must not
		// survive a wrong key.
		require.NotEqual(t, "JBSWY3DPEHPK3PXP", got)
	} else {
		require.ErrorIs(t, err, ErrMalformedCiphertext)
	}
}

func TestNew_ValidatesIV(t *testing.T) {
	cfg := testConfig()
	cfg.IV = "not-hex"
	_, err := New(cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.IV = "fb1f4b0a"
	_, err = New(cfg)
	require.Error(t, err)
}

func TestNew_SupportsSmallerKeySizes(t *testing.T) {
	cfg := testConfig()
	cfg.Algorithm = "aes-128-cbc"
	cfg.KeyLength = 16
	c, err := New(cfg)
	require.NoError(t, err)

	ct, err := c.Encrypt("seed")
	require.NoError(t, err)
	got, err := c.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "seed", got)
}

package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify_RoundTrip(t *testing.T) {
	secret := []byte("whsec_test_secret")

	cases := []struct {
		name string
		body []byte
	}{
		{"json payload", []byte(`{"transaction_id":"txn_123","amount":"1000.00"}`)},
		{"single byte", []byte("x")},
		{"binary payload", []byte{0x00, 0xff, 0x10, 0x7f}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := Sign(secret, tc.body)
			assert.True(t, Verify(secret, tc.body, sig))
		})
	}
}

func TestVerify_TamperedBody(t *testing.T) {
	secret := []byte("whsec_test_secret")
	body := []byte(`{"transaction_id":"txn_123","amount":"1000.00"}`)
	sig := Sign(secret, body)

	tampered := []byte(`{"transaction_id":"txn_123","amount":"9000.00"}`)
	assert.False(t, Verify(secret, tampered, sig))
}

// Timing independence of the comparison is not measured here: a wall
// clock assertion would be flaky under CI load. The property comes from
// hmac.Equal, which compares via crypto/subtle in constant time.
func TestVerify_TamperedSignature(t *testing.T) {
	secret := []byte("whsec_test_secret")
	body := []byte(`{"transaction_id":"txn_123"}`)
	sig := Sign(secret, body)

	// Flip one hex digit
	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	assert.False(t, Verify(secret, body, string(flipped)))
}

func TestVerify_WrongSecret(t *testing.T) {
	body := []byte(`{"transaction_id":"txn_123"}`)
	sig := Sign([]byte("secret-a"), body)
	assert.False(t, Verify([]byte("secret-b"), body, sig))
}

func TestVerify_MalformedInput(t *testing.T) {
	secret := []byte("whsec_test_secret")
	body := []byte(`{}`)
	sig := Sign(secret, body)

	t.Run("empty signature", func(t *testing.T) {
		assert.False(t, Verify(secret, body, ""))
	})

	t.Run("empty body", func(t *testing.T) {
		assert.False(t, Verify(secret, nil, sig))
	})

	t.Run("empty secret", func(t *testing.T) {
		assert.False(t, Verify(nil, body, sig))
	})

	t.Run("non-hex signature", func(t *testing.T) {
		assert.False(t, Verify(secret, body, "not-hex-at-all!!"))
	})

	t.Run("truncated signature", func(t *testing.T) {
		assert.False(t, Verify(secret, body, sig[:16]))
	})
}

func TestVerifier_BoundSecret(t *testing.T) {
	secret := []byte("whsec_test_secret")
	v := NewVerifier(secret)

	body := []byte(`{"event":"payment.confirmed"}`)
	assert.True(t, v.Verify(body, Sign(secret, body)))
	assert.False(t, v.Verify(body, Sign([]byte("other"), body)))
}

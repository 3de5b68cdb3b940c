// Package internal provides helper utilities shared across the authgate
// engine. These helpers are intentionally unexported from the public API.
package internal

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
)

// NewNumericCode returns a four digit one-time code in [1000, 9999]. Leading
// zeros are excluded so the code survives transports that strip them.
func NewNumericCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		panic("authgate: crypto/rand unavailable: " + err.Error())
	}
	v := n.Int64() + 1000
	digits := []byte{
		byte('0' + v/1000),
		byte('0' + (v/100)%10),
		byte('0' + (v/10)%10),
		byte('0' + v%10),
	}
	return string(digits)
}

// NewEmailSecret returns a URL-safe secret suitable for embedding in a
// verification link. 24 random bytes gives 192 bits of entropy.
func NewEmailSecret() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic("authgate: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

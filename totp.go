package authgate

import (
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// pquernaVerifier is the default [TotpVerifier]. Parameters match the
// authenticator-app convention: 30 second period, six digits, SHA1, one
// period of clock skew in each direction.
type pquernaVerifier struct {
	issuer string
	clock  Clock
}

func (v *pquernaVerifier) GenerateSecret(account string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: account,
		SecretSize:  20,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

func (v *pquernaVerifier) Validate(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, v.clock.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

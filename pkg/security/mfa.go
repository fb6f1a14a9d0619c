package security

import (
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const mfaIssuer = "SecureWallet"

// MFASecret is a freshly generated TOTP secret and its provisioning URI.
type MFASecret struct {
	Secret string
	URI    string
}

// GenerateMFASecret creates a TOTP secret bound to the account email.
func GenerateMFASecret(email string) (MFASecret, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      mfaIssuer,
		AccountName: email,
		SecretSize:  20,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return MFASecret{}, err
	}
	return MFASecret{Secret: key.Secret(), URI: key.URL()}, nil
}

// VerifyMFACode checks if the provided 6-digit code is valid for the given secret.
func VerifyMFACode(code, secret string) bool {
	if code == "" || secret == "" {
		return false
	}
	return totp.Validate(code, secret)
}

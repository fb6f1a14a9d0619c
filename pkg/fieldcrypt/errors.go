package fieldcrypt

import "errors"

var (
	// ErrKeyConfig means key material is missing or malformed. Fatal at startup.
	ErrKeyConfig = errors.New("fieldcrypt: invalid key configuration")
	// ErrIntegrity means no candidate key verified the authentication tag.
	ErrIntegrity = errors.New("fieldcrypt: integrity check failed")
	// ErrUnknownKey means the envelope names a key that is not configured.
	ErrUnknownKey = errors.New("fieldcrypt: unknown key id")
	// ErrMalformedEnvelope means the envelope could not be decoded.
	ErrMalformedEnvelope = errors.New("fieldcrypt: malformed envelope")
)

// Package fieldcrypt encrypts individual PII fields with AES-256-GCM.
//
// Every encryption draws a fresh 96-bit nonce and records the active key id,
// so keys can be rotated without re-encrypting existing rows: decryption looks
// the key up by id, or tries every configured key for envelopes written
// before ids were recorded.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
)

// Codec encrypts and decrypts fields with a Keyring.
type Codec struct {
	ring   *Keyring
	strict bool
	random io.Reader
}

// Option configures a Codec.
type Option func(*Codec)

// WithStrict makes EncryptFields and DecryptFields return the first failure
// instead of leaving the value untouched.
func WithStrict(strict bool) Option {
	return func(c *Codec) { c.strict = strict }
}

// WithRandom replaces the nonce source.
func WithRandom(r io.Reader) Option {
	return func(c *Codec) { c.random = r }
}

func NewCodec(ring *Keyring, opts ...Option) *Codec {
	c := &Codec{ring: ring, random: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AAD binds a ciphertext to a namespace and field name.
func AAD(namespace, field string) []byte {
	return []byte(namespace + ":" + field)
}

// Encrypt seals plaintext under the active key.
func (c *Codec) Encrypt(plaintext string, aad []byte) (Envelope, error) {
	id := c.ring.ActiveID()
	key, _ := c.ring.key(id)

	gcm, err := newGCM(key)
	if err != nil {
		return Envelope{}, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return Envelope{}, fmt.Errorf("fieldcrypt: read nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), aad)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return Envelope{
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Tag:        base64.StdEncoding.EncodeToString(tag),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		Algorithm:  Algorithm,
		KeyID:      id,
		Version:    CurrentVersion,
	}, nil
}

// Decrypt opens an envelope. An envelope with a key id is tried only with
// that key; one without is tried with the active key and then every other
// key. Each attempt with aad falls back to no AAD for envelopes sealed before
// AAD binding.
func (c *Codec) Decrypt(env Envelope, aad []byte) (string, error) {
	iv, tag, ct, err := env.decode()
	if err != nil {
		return "", err
	}

	ids := c.ring.candidates()
	if env.KeyID != "" {
		if _, ok := c.ring.key(env.KeyID); !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownKey, env.KeyID)
		}
		ids = []string{env.KeyID}
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	for _, id := range ids {
		key, _ := c.ring.key(id)
		gcm, err := newGCM(key)
		if err != nil {
			return "", err
		}
		if pt, err := gcm.Open(nil, iv, sealed, aad); err == nil {
			return string(pt), nil
		}
		if len(aad) > 0 {
			if pt, err := gcm.Open(nil, iv, sealed, nil); err == nil {
				return string(pt), nil
			}
		}
	}
	return "", ErrIntegrity
}

// EncryptFields replaces each plaintext value in fields with its envelope.
// Absent and already encrypted values are skipped. The map keys name the
// fields and are bound into the AAD together with namespace.
func (c *Codec) EncryptFields(fields map[string]*Value, namespace string) error {
	for _, name := range sortedNames(fields) {
		v := fields[name]
		if v == nil || v.kind != kindPlain {
			continue
		}
		env, err := c.Encrypt(v.plain, AAD(namespace, name))
		if err != nil {
			if c.strict {
				return fmt.Errorf("encrypt %s.%s: %w", namespace, name, err)
			}
			continue
		}
		*v = Sealed(env)
	}
	return nil
}

// DecryptFields replaces each envelope in fields with its plaintext.
// In non-strict mode a value that fails to decrypt, malformed envelopes
// included, is left as stored.
func (c *Codec) DecryptFields(fields map[string]*Value, namespace string) error {
	for _, name := range sortedNames(fields) {
		v := fields[name]
		if v == nil || v.kind != kindSealed {
			continue
		}
		env, err := v.sealedEnvelope()
		var pt string
		if err == nil {
			pt, err = c.Decrypt(env, AAD(namespace, name))
		}
		if err != nil {
			if c.strict {
				return fmt.Errorf("decrypt %s.%s: %w", namespace, name, err)
			}
			continue
		}
		*v = Plain(pt)
	}
	return nil
}

// Strict reports whether the codec raises on per-field failures.
func (c *Codec) Strict() bool { return c.strict }

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func sortedNames(fields map[string]*Value) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

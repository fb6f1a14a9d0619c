package fieldcrypt

import (
	"bytes"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	// Algorithm is recorded on every envelope produced by this package.
	Algorithm = "aes-256-gcm"
	// CurrentVersion marks envelopes that carry a key id and AAD binding.
	CurrentVersion = 2

	nonceSize = 12
	tagSize   = 16
)

// Envelope is the at-rest form of an encrypted field. Binary parts are base64.
// Envelopes without a version predate key ids and AAD binding.
type Envelope struct {
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
	Ciphertext string `json:"ciphertext"`
	Algorithm  string `json:"alg,omitempty"`
	KeyID      string `json:"keyId,omitempty"`
	Version    int    `json:"v,omitempty"`
}

// Legacy reports whether the envelope was written before versioning.
func (e Envelope) Legacy() bool { return e.Version < CurrentVersion }

func (e Envelope) decode() (iv, tag, ct []byte, err error) {
	if e.Algorithm != "" && e.Algorithm != Algorithm {
		return nil, nil, nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedEnvelope, e.Algorithm)
	}
	if iv, err = base64.StdEncoding.DecodeString(e.IV); err != nil || len(iv) != nonceSize {
		return nil, nil, nil, fmt.Errorf("%w: bad iv", ErrMalformedEnvelope)
	}
	if tag, err = base64.StdEncoding.DecodeString(e.Tag); err != nil || len(tag) != tagSize {
		return nil, nil, nil, fmt.Errorf("%w: bad tag", ErrMalformedEnvelope)
	}
	if ct, err = base64.StdEncoding.DecodeString(e.Ciphertext); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad ciphertext", ErrMalformedEnvelope)
	}
	return iv, tag, ct, nil
}

type valueKind uint8

const (
	kindAbsent valueKind = iota
	kindPlain
	kindSealed
)

// Value is a stored PII field: absent, legacy plaintext, or an Envelope.
// The zero Value is absent. Stored JSON that is neither a string nor a
// complete envelope still reads as an encrypted Value; it is kept verbatim
// and fails only when decrypted.
type Value struct {
	kind     valueKind
	plain    string
	envelope Envelope
	raw      json.RawMessage
}

// Plain wraps a plaintext value.
func Plain(s string) Value { return Value{kind: kindPlain, plain: s} }

// Sealed wraps an encrypted envelope.
func Sealed(e Envelope) Value { return Value{kind: kindSealed, envelope: e} }

// Optional returns Plain(s) for a non-empty s and the absent Value otherwise.
func Optional(s string) Value {
	if s == "" {
		return Value{}
	}
	return Plain(s)
}

func (v Value) IsZero() bool      { return v.kind == kindAbsent }
func (v Value) IsEncrypted() bool { return v.kind == kindSealed }

// Plaintext returns the value when it is stored or decrypted as plaintext.
func (v Value) Plaintext() (string, bool) {
	return v.plain, v.kind == kindPlain
}

// Envelope returns the envelope when the value is encrypted and well formed.
func (v Value) Envelope() (Envelope, bool) {
	return v.envelope, v.kind == kindSealed && v.raw == nil
}

func (v Value) sealedEnvelope() (Envelope, error) {
	if v.raw != nil {
		return Envelope{}, fmt.Errorf("%w: missing iv, tag or ciphertext", ErrMalformedEnvelope)
	}
	return v.envelope, nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindPlain:
		return json.Marshal(v.plain)
	case kindSealed:
		if v.raw != nil {
			return v.raw, nil
		}
		return json.Marshal(v.envelope)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON string as legacy plaintext and anything else
// as an envelope. A malformed envelope is not an error here; it surfaces on
// decryption.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*v = Value{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Plain(s)
		return nil
	}

	var e Envelope
	if data[0] == '{' && json.Unmarshal(data, &e) == nil && e.IV != "" && e.Tag != "" && e.Ciphertext != "" {
		*v = Sealed(e)
		return nil
	}
	*v = Value{kind: kindSealed, raw: append(json.RawMessage(nil), data...)}
	return nil
}

// Scan reads a JSONB column.
func (v *Value) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		*v = Value{}
		return nil
	case []byte:
		return v.UnmarshalJSON(s)
	case string:
		return v.UnmarshalJSON([]byte(s))
	default:
		return fmt.Errorf("fieldcrypt: cannot scan %T into Value", src)
	}
}

// Value writes a JSONB column; absent values are stored as NULL.
func (v Value) Value() (driver.Value, error) {
	if v.kind == kindAbsent {
		return nil, nil
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

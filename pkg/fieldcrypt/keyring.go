package fieldcrypt

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

// KeySize is the required length of every key in bytes (AES-256).
const KeySize = 32

// DefaultKeyID names the key when configuration supplies a single key.
const DefaultKeyID = "default"

// Key is one named piece of key material.
type Key struct {
	ID       string
	Material []byte
}

// Keyring is an immutable set of named keys with exactly one active key.
// It is built once at startup and shared read-only by every Codec.
type Keyring struct {
	active string
	keys   map[string][]byte
	order  []string
}

// NewKeyring validates the keys and resolves the active one.
func NewKeyring(activeID string, keys ...Key) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no keys configured", ErrKeyConfig)
	}

	kr := &Keyring{keys: make(map[string][]byte, len(keys))}
	for _, k := range keys {
		id := strings.TrimSpace(k.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: empty key id", ErrKeyConfig)
		}
		if len(k.Material) != KeySize {
			return nil, fmt.Errorf("%w: key %q must be %d bytes, got %d", ErrKeyConfig, id, KeySize, len(k.Material))
		}
		if _, dup := kr.keys[id]; dup {
			return nil, fmt.Errorf("%w: duplicate key id %q", ErrKeyConfig, id)
		}
		material := make([]byte, KeySize)
		copy(material, k.Material)
		kr.keys[id] = material
		kr.order = append(kr.order, id)
	}

	if activeID == "" && len(keys) == 1 {
		activeID = kr.order[0]
	}
	if _, ok := kr.keys[activeID]; !ok {
		return nil, fmt.Errorf("%w: active key %q is not configured", ErrKeyConfig, activeID)
	}
	kr.active = activeID

	return kr, nil
}

// ParseKeyring builds a keyring from environment-style settings. single is a
// base64 key stored under DefaultKeyID; multi is a comma separated list of
// id:base64 pairs. When both are set, multi wins and single is appended as
// DefaultKeyID unless that id is already listed.
func ParseKeyring(single, multi, activeID string) (*Keyring, error) {
	var keys []Key
	seen := map[string]bool{}

	for _, part := range strings.Split(multi, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, encoded, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: entry %q is not id:base64", ErrKeyConfig, part)
		}
		material, err := decodeKey(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrKeyConfig, id, err)
		}
		keys = append(keys, Key{ID: strings.TrimSpace(id), Material: material})
		seen[strings.TrimSpace(id)] = true
	}

	if single = strings.TrimSpace(single); single != "" && !seen[DefaultKeyID] {
		material, err := decodeKey(single)
		if err != nil {
			return nil, fmt.Errorf("%w: ENCRYPTION_KEY: %v", ErrKeyConfig, err)
		}
		keys = append(keys, Key{ID: DefaultKeyID, Material: material})
	}

	if activeID == "" && len(keys) > 1 {
		return nil, fmt.Errorf("%w: active key id required with %d keys", ErrKeyConfig, len(keys))
	}
	return NewKeyring(activeID, keys...)
}

// EphemeralKeyring returns a keyring holding one random key. Values sealed
// with it do not survive a restart.
func EphemeralKeyring() (*Keyring, error) {
	material := make([]byte, KeySize)
	if _, err := rand.Read(material); err != nil {
		return nil, err
	}
	return NewKeyring(DefaultKeyID, Key{ID: DefaultKeyID, Material: material})
}

// ActiveID returns the id used for new encryptions.
func (k *Keyring) ActiveID() string { return k.active }

// IDs returns the configured key ids, sorted.
func (k *Keyring) IDs() []string {
	ids := append([]string(nil), k.order...)
	sort.Strings(ids)
	return ids
}

func (k *Keyring) key(id string) ([]byte, bool) {
	m, ok := k.keys[id]
	return m, ok
}

// candidates lists the active key first, then the rest in configuration order.
func (k *Keyring) candidates() []string {
	out := make([]string, 0, len(k.order))
	out = append(out, k.active)
	for _, id := range k.order {
		if id != k.active {
			out = append(out, id)
		}
	}
	return out
}

func decodeKey(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(b) != KeySize {
		return nil, fmt.Errorf("decoded key must be %d bytes, got %d", KeySize, len(b))
	}
	return b, nil
}

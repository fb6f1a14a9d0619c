package fieldcrypt

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(b byte) string { return base64.StdEncoding.EncodeToString(testKey(b)) }

func TestParseKeyring(t *testing.T) {
	tests := []struct {
		name       string
		single     string
		multi      string
		active     string
		wantActive string
		wantIDs    []string
		wantErr    bool
	}{
		{name: "single key", single: b64(1), wantActive: DefaultKeyID, wantIDs: []string{DefaultKeyID}},
		{name: "multi with active", multi: "a:" + b64(1) + ",b:" + b64(2), active: "b", wantActive: "b", wantIDs: []string{"a", "b"}},
		{name: "multi plus single", single: b64(3), multi: "a:" + b64(1), active: "a", wantActive: "a", wantIDs: []string{"a", DefaultKeyID}},
		{name: "nothing configured", wantErr: true},
		{name: "short key", single: base64.StdEncoding.EncodeToString([]byte("short")), wantErr: true},
		{name: "bad base64", single: "***", wantErr: true},
		{name: "unresolvable active", multi: "a:" + b64(1), active: "z", wantErr: true},
		{name: "ambiguous active", multi: "a:" + b64(1) + ",b:" + b64(2), wantErr: true},
		{name: "malformed entry", multi: "nocolon", wantErr: true},
		{name: "duplicate id", multi: "a:" + b64(1) + ",a:" + b64(2), active: "a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kr, err := ParseKeyring(tt.single, tt.multi, tt.active)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrKeyConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantActive, kr.ActiveID())
			assert.Equal(t, tt.wantIDs, kr.IDs())
		})
	}
}

func TestNewKeyring_CopiesMaterial(t *testing.T) {
	material := testKey(1)
	kr, err := NewKeyring("k", Key{ID: "k", Material: material})
	require.NoError(t, err)

	material[0] = 0xff
	stored, ok := kr.key("k")
	require.True(t, ok)
	assert.Equal(t, byte(1), stored[0])
}

func TestEphemeralKeyring(t *testing.T) {
	kr, err := EphemeralKeyring()
	require.NoError(t, err)
	assert.Equal(t, DefaultKeyID, kr.ActiveID())
}

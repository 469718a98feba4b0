package device

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kashguard/go-waas-device/internal/mpc/coordinator"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind ValueKind
	}{
		{"pool", &waas.Pool{Name: "pools/p1"}, KindPool},
		{"signature", &waas.Signature{Name: "s"}, KindSignature},
		{"private key", &protocol.PrivateKey{PrivateKey: "aa"}, KindPrivateKey},
		{"export metadata", &coordinator.ExportMetadata{MPCKeyExportMetadata: "md"}, KindExportMetadata},
		{"text", "stopped", KindText},
		{"opaque", []byte{1, 2}, KindOpaque},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Encode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind)
		})
	}
}

func TestEncode_Unsupported(t *testing.T) {
	_, err := Encode(42)
	assert.True(t, errors.Is(err, ErrUnsupportedValue))

	_, err = Encode((*waas.Pool)(nil))
	assert.True(t, errors.Is(err, ErrUnsupportedValue))
}

func TestValue_JSON(t *testing.T) {
	in := Value{Kind: KindAddress, Address: &waas.Address{Name: "a1", Address: "0xabc", MPCKeys: []string{"k1"}}}

	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"address","value":{"name":"a1","address":"0xabc","mpc_keys":["k1"],"mpc_wallet":""}}`, string(b))

	var out Value
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"bogus","value":{}}`), &out))
}

func TestPromise_FirstSettlementWins(t *testing.T) {
	p := NewPromise[string]()
	p.Resolve("first")
	p.Reject(protocol.CodeDomain, "late")

	v, err := p.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestPromise_AwaitHonoursContext(t *testing.T) {
	p := NewPromise[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExportMetadata_Base64(t *testing.T) {
	md := &coordinator.ExportMetadata{
		DeviceGroup:          testGroup,
		MPCKeyExportMetadata: "export-md",
		PreparedAt:           time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	s, err := MarshalExportMetadata(md)
	require.NoError(t, err)

	out, err := UnmarshalExportMetadata(s)
	require.NoError(t, err)
	assert.Equal(t, md.DeviceGroup, out.DeviceGroup)
	assert.Equal(t, md.MPCKeyExportMetadata, out.MPCKeyExportMetadata)
	assert.True(t, md.PreparedAt.Equal(out.PreparedAt))

	_, err = UnmarshalExportMetadata("%%%")
	assert.Error(t, err)
}

package bundle

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/sshkeeper/internal/common"
)

func testBundle() *Bundle {
	return &Bundle{
		ServerAddress: "host.example",
		Location:      "Helsinki",
		Username:      "ssh4x7k2p",
		Secret:        "s3cr3t!with@symbols",
		Ports:         []uint16{22, 2222},
		Expiry:        time.Date(2024, 1, 10, 0, 0, 0, 0, time.Local),
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	in := testBundle()

	token, err := Encode(in)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	out, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeDecode_RoundTrip_EmptyStrings(t *testing.T) {
	in := &Bundle{
		Ports:  []uint16{22},
		Expiry: time.Date(2030, 12, 31, 0, 0, 0, 0, time.Local),
	}

	token, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncode_TokenIsURLSafe(t *testing.T) {
	token, err := Encode(testBundle())
	require.NoError(t, err)

	assert.NotContains(t, token, "=")
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
}

func TestMarshal_RejectsInvalidBundles(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Bundle)
	}{
		{"no ports", func(b *Bundle) { b.Ports = nil }},
		{"zero port", func(b *Bundle) { b.Ports = []uint16{22, 0} }},
		{"oversized field", func(b *Bundle) { b.Location = strings.Repeat("x", 0x10000) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBundle()
			tt.mutate(b)
			_, err := Marshal(b)
			require.ErrorIs(t, err, common.ErrCodec)
		})
	}
}

func TestDecode_MalformedTokens(t *testing.T) {
	valid, err := Encode(testBundle())
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"truncated", valid[:len(valid)/2]},
		{"garbage payload", "AAAAAAAAAAAAAAAA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Decode(tt.token)
			require.ErrorIs(t, err, common.ErrCodec)
			assert.Nil(t, out)
		})
	}
}

func TestDecode_BitFlipNeverSucceeds(t *testing.T) {
	valid, err := Encode(testBundle())
	require.NoError(t, err)

	// Flip one base64 symbol at every position. The zlib checksum (or the
	// strict deserializer behind it) must reject each variant. The final
	// symbol is skipped: its low bits are base64 padding and flipping them
	// may not change the decoded bytes at all.
	for i := 0; i < len(valid)-1; i++ {
		flipped := []byte(valid)
		if flipped[i] == 'A' {
			flipped[i] = 'B'
		} else {
			flipped[i] = 'A'
		}
		if string(flipped) == valid {
			continue
		}
		if out, err := Decode(string(flipped)); err == nil {
			t.Fatalf("bit flip at %d decoded into %+v", i, out)
		} else if !errors.Is(err, common.ErrCodec) {
			t.Fatalf("bit flip at %d: error is not ErrCodec: %v", i, err)
		}
	}
}

func TestUnmarshal_MalformedPayloads(t *testing.T) {
	raw, err := Marshal(testBundle())
	require.NoError(t, err)

	t.Run("unknown version", func(t *testing.T) {
		bad := append([]byte{0x7F}, raw[1:]...)
		_, err := Unmarshal(bad)
		require.ErrorIs(t, err, common.ErrCodec)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		bad := append(append([]byte{}, raw...), 0x00)
		_, err := Unmarshal(bad)
		require.ErrorIs(t, err, common.ErrCodec)
	})

	t.Run("every truncation fails", func(t *testing.T) {
		for n := 0; n < len(raw); n++ {
			if _, err := Unmarshal(raw[:n]); err == nil {
				t.Fatalf("truncation to %d bytes decoded successfully", n)
			}
		}
	})

	t.Run("impossible date", func(t *testing.T) {
		bad := append([]byte{}, raw...)
		bad[len(bad)-1] = 40 // day 40
		_, err := Unmarshal(bad)
		require.ErrorIs(t, err, common.ErrCodec)
	})
}

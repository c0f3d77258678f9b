package bundle

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/sshkeeper/internal/common"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestRenderQR_ProducesPNG(t *testing.T) {
	token, err := Encode(&Bundle{
		ServerAddress: "host.example",
		Location:      "X",
		Username:      "u1",
		Secret:        "p",
		Ports:         []uint16{22, 2222},
		Expiry:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local),
	})
	require.NoError(t, err)

	png, err := RenderQR(token)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic), "rendered image is not a PNG")
}

func TestRenderQR_EmptyToken(t *testing.T) {
	_, err := RenderQR("")
	require.Error(t, err)
}

func TestRenderQR_TokenTooLong(t *testing.T) {
	// QR version 40 at Low EC tops out below 3000 bytes; this cannot fit.
	_, err := RenderQR(strings.Repeat("a", 5000))
	require.ErrorIs(t, err, common.ErrTokenTooLong)
}

package bundle

import (
	"fmt"

	"github.com/dmitrijs2005/sshkeeper/internal/common"
	qrcode "github.com/skip2/go-qrcode"
)

// qrImageSize is the rendered PNG edge length in pixels.
const qrImageSize = 512

// RenderQR encodes a token into a QR PNG at the Low error-correction level,
// which maximizes capacity. The library picks the smallest symbol version
// that fits the token and errors out when none does; a token is never
// silently cropped to fit.
func RenderQR(token string) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", common.ErrCodec)
	}
	png, err := qrcode.Encode(token, qrcode.Low, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTokenTooLong, err)
	}
	return png, nil
}

package bundle

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/dmitrijs2005/sshkeeper/internal/common"
	"github.com/klauspost/compress/zlib"
)

// Encode turns a bundle into its printable token: the binary form is
// DEFLATE-compressed (the record is short and repetitive, so this meaningfully
// shrinks QR density) and then base64-encoded with the URL-safe alphabet and
// no padding, leaving no characters that need escaping in a URL or barcode.
//
// zlib framing rather than raw DEFLATE: the adler32 trailer lets Decode
// reject a damaged token instead of inflating it into garbage.
func Encode(b *Bundle) (string, error) {
	raw, err := Marshal(b)
	if err != nil {
		return "", err
	}

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write(raw); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrCodec, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrCodec, err)
	}

	return base64.RawURLEncoding.EncodeToString(compressed.Bytes()), nil
}

// Decode is the exact inverse of Encode. Malformed base64, a corrupt or
// checksum-failing DEFLATE stream, and every Unmarshal failure surface as
// ErrCodec; a damaged token never decodes into a partially filled bundle.
func Decode(token string) (*Bundle, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %v", common.ErrCodec, err)
	}

	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt compressed stream: %v", common.ErrCodec, err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt compressed stream: %v", common.ErrCodec, err)
	}

	return Unmarshal(raw)
}

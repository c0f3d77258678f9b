// Package bundle implements the credential bundle and its codec: a compact,
// versioned binary serialization of connection secrets, compressed and
// encoded into a printable token that fits in a QR code.
//
// A Bundle is a transient value. It is built immediately before rendering,
// handed to the end user, and discarded; it must never be written to durable
// storage or logs.
package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sshkeeper/internal/common"
)

// FormatVersion is the leading byte of every serialized bundle. Decoders
// reject unknown versions instead of guessing — the token format is the one
// bit-exact external artifact this system owns.
const FormatVersion byte = 0x01

// Bundle carries everything an end user needs to connect.
type Bundle struct {
	ServerAddress string
	Location      string
	Username      string
	Secret        string
	Ports         []uint16
	Expiry        time.Time
}

// Marshal packs the bundle into its versioned binary form:
//
//	[1]  format version
//	[2+n] server address  (2-byte big-endian length + bytes)
//	[2+n] location
//	[2+n] username
//	[2+n] secret
//	[2]  port count, then 2 bytes big-endian per port
//	[4]  expiry date: uint16 year, byte month, byte day
//
// Field order and explicit lengths are fixed; they are what makes the format
// unambiguous across versions.
func Marshal(b *Bundle) ([]byte, error) {
	if len(b.Ports) == 0 {
		return nil, fmt.Errorf("%w: bundle has no ports", common.ErrCodec)
	}
	for _, p := range b.Ports {
		if p == 0 {
			return nil, fmt.Errorf("%w: port 0 is not addressable", common.ErrCodec)
		}
	}

	var buf bytes.Buffer
	buf.WriteByte(FormatVersion)

	for _, s := range []string{b.ServerAddress, b.Location, b.Username, b.Secret} {
		if len(s) > 0xFFFF {
			return nil, fmt.Errorf("%w: field exceeds 65535 bytes", common.ErrCodec)
		}
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(s)))
		buf.Write(l[:])
		buf.WriteString(s)
	}

	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(b.Ports)))
	buf.Write(n[:])
	for _, p := range b.Ports {
		var pb [2]byte
		binary.BigEndian.PutUint16(pb[:], p)
		buf.Write(pb[:])
	}

	year, month, day := b.Expiry.Date()
	if year < 0 || year > 0xFFFF {
		return nil, fmt.Errorf("%w: expiry year out of range", common.ErrCodec)
	}
	var d [4]byte
	binary.BigEndian.PutUint16(d[:2], uint16(year))
	d[2] = byte(month)
	d[3] = byte(day)
	buf.Write(d[:])

	return buf.Bytes(), nil
}

// Unmarshal parses the binary form produced by Marshal. It is strict: a
// short buffer, unknown version, impossible date, missing ports, or trailing
// bytes all fail with ErrCodec. It never returns a partially filled bundle.
func Unmarshal(data []byte) (*Bundle, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", common.ErrCodec)
	}
	if data[0] != FormatVersion {
		return nil, fmt.Errorf("%w: unknown format version %#02x", common.ErrCodec, data[0])
	}
	off := 1

	readString := func() (string, error) {
		if off+2 > len(data) {
			return "", fmt.Errorf("%w: truncated field length", common.ErrCodec)
		}
		n := int(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		if off+n > len(data) {
			return "", fmt.Errorf("%w: field overruns payload", common.ErrCodec)
		}
		s := string(data[off : off+n])
		off += n
		return s, nil
	}

	b := &Bundle{}
	var err error
	if b.ServerAddress, err = readString(); err != nil {
		return nil, err
	}
	if b.Location, err = readString(); err != nil {
		return nil, err
	}
	if b.Username, err = readString(); err != nil {
		return nil, err
	}
	if b.Secret, err = readString(); err != nil {
		return nil, err
	}

	if off+2 > len(data) {
		return nil, fmt.Errorf("%w: truncated port count", common.ErrCodec)
	}
	count := int(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	if count == 0 {
		return nil, fmt.Errorf("%w: bundle has no ports", common.ErrCodec)
	}
	if off+2*count > len(data) {
		return nil, fmt.Errorf("%w: truncated port list", common.ErrCodec)
	}
	b.Ports = make([]uint16, count)
	for i := 0; i < count; i++ {
		p := binary.BigEndian.Uint16(data[off : off+2])
		off += 2
		if p == 0 {
			return nil, fmt.Errorf("%w: port 0 is not addressable", common.ErrCodec)
		}
		b.Ports[i] = p
	}

	if off+4 > len(data) {
		return nil, fmt.Errorf("%w: truncated expiry date", common.ErrCodec)
	}
	year := int(binary.BigEndian.Uint16(data[off : off+2]))
	month := int(data[off+2])
	day := int(data[off+3])
	off += 4
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil, fmt.Errorf("%w: impossible expiry date %04d-%02d-%02d", common.ErrCodec, year, month, day)
	}
	b.Expiry = time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)

	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", common.ErrCodec, len(data)-off)
	}

	return b, nil
}

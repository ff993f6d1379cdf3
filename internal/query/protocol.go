// Package query implements the status protocol spoken with individual
// game servers and a bounded-concurrency client that interrogates many
// of them at once.
//
// Wire format: one datagram each way, big-endian, at most 1200 bytes.
//
//	header (8 bytes): magic 0xD5, version 0x01, type, reserved 0x00,
//	                  correlation token uint32
//	request (0x01):   header only
//	response (0x02):  header, then
//	                  build_id uint32, players uint16, max_players uint16,
//	                  flags uint8 (bit0 password, bit1 battleye),
//	                  name/map as uint8-length-prefixed UTF-8,
//	                  mod_count uint8, then that many length-prefixed
//	                  UTF-8 mod names
//
// The token is chosen by the client per address and must be echoed
// verbatim; responses carrying any other token are discarded.
package query

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"server-browser/internal/constants"
)

const (
	protocolMagic   = 0xD5
	protocolVersion = 0x01

	typeStatusRequest  = 0x01
	typeStatusResponse = 0x02

	headerSize = 8

	flagPasswordProtected = 1 << 0
	flagBattlEye          = 1 << 1
)

var (
	// ErrMalformed marks a datagram the codec refuses: bad framing, bad
	// token, truncated or oversized content. For retry purposes it is
	// treated exactly like a timeout.
	ErrMalformed = errors.New("malformed status datagram")

	// ErrTimeout marks an exchange that exhausted its attempts without
	// a decodable, token-matching response.
	ErrTimeout = errors.New("status query timed out")
)

// Status carries the live fields a server reports in a status response.
type Status struct {
	BuildID           uint32
	Players           int
	MaxPlayers        int
	PasswordProtected bool
	BattlEye          bool
	Name              string
	Map               string
	Mods              []string
}

// EncodeRequest frames a status request carrying the correlation token.
func EncodeRequest(token uint32) []byte {
	buf := make([]byte, headerSize)
	buf[0] = protocolMagic
	buf[1] = protocolVersion
	buf[2] = typeStatusRequest
	binary.BigEndian.PutUint32(buf[4:], token)
	return buf
}

// DecodeRequest validates a status request and extracts its token.
func DecodeRequest(data []byte) (uint32, error) {
	if len(data) != headerSize {
		return 0, fmt.Errorf("%w: request is %d bytes", ErrMalformed, len(data))
	}
	if err := checkHeader(data, typeStatusRequest); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(data[4:]), nil
}

// EncodeResponse frames a status response echoing the request token. The
// engine only consumes responses, but the codec is symmetric so fixtures
// and server implementations share one layout definition.
func EncodeResponse(token uint32, status Status) ([]byte, error) {
	if status.Players < 0 || status.Players > 0xFFFF || status.MaxPlayers < 0 || status.MaxPlayers > 0xFFFF {
		return nil, fmt.Errorf("player counts out of range")
	}
	if len(status.Mods) > 0xFF {
		return nil, fmt.Errorf("too many mods: %d", len(status.Mods))
	}

	buf := make([]byte, headerSize, headerSize+64)
	buf[0] = protocolMagic
	buf[1] = protocolVersion
	buf[2] = typeStatusResponse
	binary.BigEndian.PutUint32(buf[4:], token)

	buf = binary.BigEndian.AppendUint32(buf, status.BuildID)
	buf = binary.BigEndian.AppendUint16(buf, uint16(status.Players))
	buf = binary.BigEndian.AppendUint16(buf, uint16(status.MaxPlayers))

	var flags byte
	if status.PasswordProtected {
		flags |= flagPasswordProtected
	}
	if status.BattlEye {
		flags |= flagBattlEye
	}
	buf = append(buf, flags)

	var err error
	if buf, err = appendString(buf, status.Name); err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	if buf, err = appendString(buf, status.Map); err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}
	buf = append(buf, byte(len(status.Mods)))
	for _, mod := range status.Mods {
		if buf, err = appendString(buf, mod); err != nil {
			return nil, fmt.Errorf("mod: %w", err)
		}
	}

	if len(buf) > constants.MaxDatagramSize {
		return nil, fmt.Errorf("response is %d bytes, limit %d", len(buf), constants.MaxDatagramSize)
	}
	return buf, nil
}

// DecodeResponse validates a status response against the token sent with
// the request. Every rejection is ErrMalformed; the caller cannot tell a
// spoofed datagram from a corrupt one and treats both like silence.
func DecodeResponse(data []byte, token uint32) (Status, error) {
	if len(data) > constants.MaxDatagramSize {
		return Status{}, fmt.Errorf("%w: %d bytes exceeds datagram limit", ErrMalformed, len(data))
	}
	if len(data) < headerSize {
		return Status{}, fmt.Errorf("%w: short datagram (%d bytes)", ErrMalformed, len(data))
	}
	if err := checkHeader(data, typeStatusResponse); err != nil {
		return Status{}, err
	}
	if got := binary.BigEndian.Uint32(data[4:]); got != token {
		return Status{}, fmt.Errorf("%w: token mismatch", ErrMalformed)
	}

	payload := data[headerSize:]
	if len(payload) < 9 {
		return Status{}, fmt.Errorf("%w: truncated payload", ErrMalformed)
	}

	status := Status{
		BuildID:    binary.BigEndian.Uint32(payload[0:4]),
		Players:    int(binary.BigEndian.Uint16(payload[4:6])),
		MaxPlayers: int(binary.BigEndian.Uint16(payload[6:8])),
	}
	flags := payload[8]
	status.PasswordProtected = flags&flagPasswordProtected != 0
	status.BattlEye = flags&flagBattlEye != 0

	rest := payload[9:]
	var err error
	if status.Name, rest, err = readString(rest); err != nil {
		return Status{}, err
	}
	if status.Map, rest, err = readString(rest); err != nil {
		return Status{}, err
	}
	if len(rest) < 1 {
		return Status{}, fmt.Errorf("%w: truncated mod count", ErrMalformed)
	}
	modCount := int(rest[0])
	rest = rest[1:]
	if modCount > 0 {
		status.Mods = make([]string, 0, modCount)
		for i := 0; i < modCount; i++ {
			var mod string
			if mod, rest, err = readString(rest); err != nil {
				return Status{}, err
			}
			status.Mods = append(status.Mods, mod)
		}
	}
	if len(rest) != 0 {
		return Status{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}
	return status, nil
}

func checkHeader(data []byte, wantType byte) error {
	if data[0] != protocolMagic {
		return fmt.Errorf("%w: bad magic 0x%02X", ErrMalformed, data[0])
	}
	if data[1] != protocolVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformed, data[1])
	}
	if data[2] != wantType {
		return fmt.Errorf("%w: unexpected type 0x%02X", ErrMalformed, data[2])
	}
	if data[3] != 0 {
		return fmt.Errorf("%w: reserved byte set", ErrMalformed)
	}
	return nil
}

func appendString(buf []byte, s string) ([]byte, error) {
	if len(s) > 0xFF {
		return nil, fmt.Errorf("string of %d bytes exceeds length prefix", len(s))
	}
	buf = append(buf, byte(len(s)))
	return append(buf, s...), nil
}

func readString(rest []byte) (string, []byte, error) {
	if len(rest) < 1 {
		return "", nil, fmt.Errorf("%w: truncated string length", ErrMalformed)
	}
	n := int(rest[0])
	rest = rest[1:]
	if len(rest) < n {
		return "", nil, fmt.Errorf("%w: truncated string body", ErrMalformed)
	}
	s := rest[:n]
	if !utf8.Valid(s) {
		return "", nil, fmt.Errorf("%w: string is not UTF-8", ErrMalformed)
	}
	return string(s), rest[n:], nil
}

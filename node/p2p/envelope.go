// Package p2p names the wire-framing boundary spec.md §1/§6 place out of
// scope to implement (gossip/DHT relay of quorum nodes and main blocks
// between peers): one fixed-size message envelope, magic+command+length
// framed, with a checksum over the payload.
package p2p

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode"

	"mercatoria.dev/core/ledgercrypto"
)

const (
	// TransportPrefixBytes is the fixed header length for every envelope.
	TransportPrefixBytes = 24
	CommandBytes         = 12

	// MaxRelayMsgBytes is the maximum permitted payload length — generous
	// enough for one signed main block or quorum node plus its signatures.
	MaxRelayMsgBytes = 8_388_608
)

// Envelope is one framed message: a network magic, an ASCII command naming
// the payload's shape ("main_block", "quorum_node", ...), and the payload
// itself (a canonically-encoded domain value).
type Envelope struct {
	Magic   uint32
	Command string
	Payload []byte
}

// ReadError conveys how the caller should treat a malformed envelope.
type ReadError struct {
	Err           error
	BanScoreDelta int  // +10 checksum/parse errors, +20 truncation, etc.
	Disconnect    bool // true for magic mismatch / oversize / truncation
}

func (e *ReadError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func checksum4(payload []byte) [4]byte {
	d := ledgercrypto.HashBytes(payload)
	var out [4]byte
	copy(out[:], d[:4])
	return out
}

func encodeCommand(cmd string) ([CommandBytes]byte, error) {
	var out [CommandBytes]byte
	if cmd == "" {
		return out, fmt.Errorf("p2p: empty command")
	}
	if len(cmd) > CommandBytes {
		return out, fmt.Errorf("p2p: command too long")
	}
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		if c >= 0x80 || c == 0x00 || !unicode.IsPrint(rune(c)) {
			return out, fmt.Errorf("p2p: command contains non-printable ASCII")
		}
		out[i] = c
	}
	return out, nil
}

func decodeCommand(b [CommandBytes]byte) (string, error) {
	n := CommandBytes
	for i := 0; i < CommandBytes; i++ {
		if b[i] == 0x00 {
			n = i
			break
		}
	}
	for i := n; i < CommandBytes; i++ {
		if b[i] != 0x00 {
			return "", fmt.Errorf("p2p: command not NUL-right-padded")
		}
	}
	cmd := string(b[:n])
	if cmd == "" {
		return "", fmt.Errorf("p2p: empty command")
	}
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		if c >= 0x80 || c == 0x00 || !unicode.IsPrint(rune(c)) {
			return "", fmt.Errorf("p2p: command contains non-printable ASCII")
		}
	}
	return cmd, nil
}

// WriteEnvelope writes a single framed message to w.
func WriteEnvelope(w io.Writer, magic uint32, command string, payload []byte) error {
	cmd12, err := encodeCommand(command)
	if err != nil {
		return err
	}
	if uint64(len(payload)) > MaxRelayMsgBytes {
		return fmt.Errorf("p2p: payload too large")
	}
	c4 := checksum4(payload)

	var hdr [TransportPrefixBytes]byte
	binary.BigEndian.PutUint32(hdr[0:4], magic)
	copy(hdr[4:16], cmd12[:])
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(len(payload)))
	copy(hdr[20:24], c4[:])

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err = w.Write(payload)
	return err
}

// ReadEnvelope reads exactly one framed message from r. It handles partial
// reads.
//
// Semantics:
//   - magic mismatch => disconnect, not ban-worthy
//   - oversize payload_length => disconnect immediately
//   - checksum mismatch => drop message (+10 ban), do not disconnect
//   - truncation / length mismatch => disconnect (+20 ban)
func ReadEnvelope(r io.Reader, expectedMagic uint32) (*Envelope, *ReadError) {
	var hdr [TransportPrefixBytes]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, &ReadError{Err: err, BanScoreDelta: 0, Disconnect: true}
	}

	magic := binary.BigEndian.Uint32(hdr[0:4])
	if magic != expectedMagic {
		return nil, &ReadError{Err: fmt.Errorf("p2p: magic mismatch"), BanScoreDelta: 0, Disconnect: true}
	}

	var cmdBytes [CommandBytes]byte
	copy(cmdBytes[:], hdr[4:16])
	cmd, err := decodeCommand(cmdBytes)
	if err != nil {
		return nil, &ReadError{Err: err, BanScoreDelta: 10, Disconnect: false}
	}

	payloadLen := binary.LittleEndian.Uint32(hdr[16:20])
	if payloadLen > MaxRelayMsgBytes {
		return nil, &ReadError{Err: fmt.Errorf("p2p: payload_length exceeds MAX_RELAY_MSG_BYTES"), BanScoreDelta: 0, Disconnect: true}
	}

	var expectedC4 [4]byte
	copy(expectedC4[:], hdr[20:24])

	payload := make([]byte, int(payloadLen))
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, &ReadError{Err: err, BanScoreDelta: 20, Disconnect: true}
		}
	}

	computedC4 := checksum4(payload)
	if !bytes.Equal(expectedC4[:], computedC4[:]) {
		return nil, &ReadError{Err: fmt.Errorf("p2p: checksum mismatch"), BanScoreDelta: 10, Disconnect: false}
	}

	return &Envelope{Magic: magic, Command: cmd, Payload: payload}, nil
}

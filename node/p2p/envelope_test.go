package p2p

import (
	"bytes"
	"io"
	"testing"
)

type chunkReader struct {
	b     []byte
	step  int
	index int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.index >= len(r.b) {
		return 0, io.EOF
	}
	n := r.step
	if n <= 0 {
		n = 1
	}
	if r.index+n > len(r.b) {
		n = len(r.b) - r.index
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p[:n], r.b[r.index:r.index+n])
	r.index += n
	return n, nil
}

func TestEmptyPayloadChecksumIsDeterministic(t *testing.T) {
	c1 := checksum4(nil)
	c2 := checksum4(nil)
	if c1 != c2 {
		t.Fatalf("checksum4(nil) is not deterministic: %x != %x", c1, c2)
	}
	if c1 == [4]byte{} {
		t.Fatalf("checksum4(nil) must not be all-zero")
	}
}

func TestWriteReadRoundTripPartialReads(t *testing.T) {
	var buf bytes.Buffer
	magic := uint32(0x11223344)

	payload := []byte("hello")
	if err := WriteEnvelope(&buf, magic, "quorum_node", payload); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}

	r := &chunkReader{b: buf.Bytes(), step: 1}
	env, rerr := ReadEnvelope(r, magic)
	if rerr != nil {
		t.Fatalf("ReadEnvelope: %v", rerr)
	}
	if env.Command != "quorum_node" {
		t.Fatalf("command mismatch: %q", env.Command)
	}
	if !bytes.Equal(env.Payload, payload) {
		t.Fatalf("payload mismatch: %x != %x", env.Payload, payload)
	}
}

func TestMagicMismatchDisconnectNoBan(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEnvelope(&buf, 0x01020304, "main_block", nil); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}
	env, rerr := ReadEnvelope(bytes.NewReader(buf.Bytes()), 0x0a0b0c0d)
	if env != nil || rerr == nil {
		t.Fatalf("expected error")
	}
	if !rerr.Disconnect || rerr.BanScoreDelta != 0 {
		t.Fatalf("expected disconnect w/0 ban, got disconnect=%v ban=%d", rerr.Disconnect, rerr.BanScoreDelta)
	}
}

func TestOversizeDisconnectImmediate(t *testing.T) {
	magic := uint32(0x11223344)
	cmd12, err := encodeCommand("main_block")
	if err != nil {
		t.Fatalf("encodeCommand: %v", err)
	}

	var hdr [TransportPrefixBytes]byte
	hdr[0] = 0x11
	hdr[1] = 0x22
	hdr[2] = 0x33
	hdr[3] = 0x44
	copy(hdr[4:16], cmd12[:])
	oversize := uint32(MaxRelayMsgBytes + 1)
	hdr[16] = byte(oversize)
	hdr[17] = byte(oversize >> 8)
	hdr[18] = byte(oversize >> 16)
	hdr[19] = byte(oversize >> 24)
	copy(hdr[20:24], []byte{1, 2, 3, 4})

	env, rerr := ReadEnvelope(bytes.NewReader(hdr[:]), magic)
	if env != nil || rerr == nil {
		t.Fatalf("expected error")
	}
	if !rerr.Disconnect {
		t.Fatalf("expected disconnect on oversize")
	}
}

func TestChecksumMismatchBan10NoDisconnect(t *testing.T) {
	magic := uint32(0x11223344)
	cmd12, err := encodeCommand("quorum_node")
	if err != nil {
		t.Fatalf("encodeCommand: %v", err)
	}
	payload := []byte{0, 1, 2, 3}

	var hdr [TransportPrefixBytes]byte
	hdr[0] = 0x11
	hdr[1] = 0x22
	hdr[2] = 0x33
	hdr[3] = 0x44
	copy(hdr[4:16], cmd12[:])
	hdr[16] = byte(len(payload))
	copy(hdr[20:24], []byte{9, 9, 9, 9})

	wire := append(hdr[:], payload...)
	env, rerr := ReadEnvelope(bytes.NewReader(wire), magic)
	if env != nil || rerr == nil {
		t.Fatalf("expected error")
	}
	if rerr.Disconnect || rerr.BanScoreDelta != 10 {
		t.Fatalf("expected no disconnect +10 ban, got disconnect=%v ban=%d", rerr.Disconnect, rerr.BanScoreDelta)
	}
}

package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zeebo/xxh3"
)

// StateBlob is a captured core state framed with the identity of the core that produced it.
type StateBlob []byte

var stateMagic = [4]byte{'P', 'B', 'S', 'T'}

const stateEnvelopeVersion = 1

// StateHeader is the decoded envelope of a StateBlob.
type StateHeader struct {
	CoreID      string
	CoreVersion string
	Checksum    uint64
}

func encodeState(desc *Descriptor, payload []byte) (StateBlob, error) {
	if len(desc.ID) > 255 || len(desc.Version) > 255 {
		return nil, fmt.Errorf("core: descriptor id or version too long to frame")
	}

	b := &bytes.Buffer{}
	b.Grow(4 + 1 + 2 + len(desc.ID) + len(desc.Version) + 12 + len(payload))
	b.Write(stateMagic[:])
	b.WriteByte(stateEnvelopeVersion)
	writeTinyString(b, desc.ID)
	writeTinyString(b, desc.Version)
	_ = binary.Write(b, binary.LittleEndian, uint32(len(payload)))
	_ = binary.Write(b, binary.LittleEndian, xxh3.Hash(payload))
	b.Write(payload)
	return b.Bytes(), nil
}

// DecodeState validates the envelope and returns the header and the raw core payload.
func DecodeState(blob StateBlob) (h StateHeader, payload []byte, err error) {
	r := bytes.NewReader(blob)

	var magic [4]byte
	if _, err = io.ReadFull(r, magic[:]); err != nil || magic != stateMagic {
		return h, nil, &CorruptStateError{Reason: "missing state header"}
	}
	version, err := r.ReadByte()
	if err != nil || version != stateEnvelopeVersion {
		return h, nil, &CorruptStateError{Reason: fmt.Sprintf("unsupported envelope version %d", version)}
	}
	if h.CoreID, err = readTinyString(r); err != nil {
		return h, nil, &CorruptStateError{Reason: "truncated core id", wrapped: err}
	}
	if h.CoreVersion, err = readTinyString(r); err != nil {
		return h, nil, &CorruptStateError{Reason: "truncated core version", wrapped: err}
	}

	var size uint32
	if err = binary.Read(r, binary.LittleEndian, &size); err != nil {
		return h, nil, &CorruptStateError{Reason: "truncated payload length", wrapped: err}
	}
	if err = binary.Read(r, binary.LittleEndian, &h.Checksum); err != nil {
		return h, nil, &CorruptStateError{Reason: "truncated checksum", wrapped: err}
	}
	if int(size) != r.Len() {
		return h, nil, &CorruptStateError{Reason: fmt.Sprintf("payload length %d does not match remaining %d bytes", size, r.Len())}
	}

	payload = blob[len(blob)-r.Len():]
	if xxh3.Hash(payload) != h.Checksum {
		return h, nil, &CorruptStateError{Reason: "payload checksum mismatch"}
	}
	return h, payload, nil
}

func writeTinyString(b *bytes.Buffer, s string) {
	b.WriteByte(uint8(len(s)))
	b.WriteString(s)
}

func readTinyString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err = io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

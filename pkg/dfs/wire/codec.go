package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
)

// ErrConnectionBroken is returned when a read or write returns fewer bytes
// than requested with no further progress possible; the caller must treat
// the connection as dead and let the connection table evict it.
var ErrConnectionBroken = errors.New("wire: connection broken")

// ErrUnknownKind is returned by Decode when the decoded envelope carries
// no body. The kind tag itself is not checked against the known kinds.
var ErrUnknownKind = errors.New("wire: unknown message kind")

func init() {
	gob.Register(ConnectRequestMsg{})
	gob.Register(ConnectResponseMsg{})
	gob.Register(DisconnectRequestMsg{})
	gob.Register(DisconnectResponseMsg{})
	gob.Register(PeerListRequestMsg{})
	gob.Register(PeerListMsg{})
	gob.Register(FileDownloadRequestMsg{})
	gob.Register(FileDownloadDeclineMsg{})
	gob.Register(FileDataMsg{})
	gob.Register(FileChangedMsg{})
	gob.Register(NewFileAvailableMsg{})
	gob.Register(FileArchivedMsg{})
	gob.Register(ValidateChecksumRequestMsg{})
	gob.Register(ValidateChecksumResponseMsg{})
	gob.Register(DeleteRequestMsg{})
	gob.Register(DeleteResponseMsg{})
	gob.Register(DeleteMsg{})
	gob.Register(MoveRequestMsg{})
	gob.Register(MoveResponseMsg{})
	gob.Register(MoveMsg{})
	gob.Register(ListRequestMsg{})
	gob.Register(ListMsg{})
	gob.Register(ArchiveRequestMsg{})
	gob.Register(ArchiveResponseMsg{})
}

// Envelope is the self-describing record carried by every frame: a kind
// tag plus the gob-encoded body for that kind.
type Envelope struct {
	Kind MessageKind
	Body WithRPCHeader
}

// Encode serializes a message into an Envelope and writes it to w as
// [4-byte little-endian length][gob payload]. The codec is synchronous:
// it does not multiplex requests over a single connection.
func Encode(w io.Writer, kind MessageKind, body WithRPCHeader) error {
	env := Envelope{Kind: kind, Body: body}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&env); err != nil {
		return fmt.Errorf("wire: encode envelope: %w", err)
	}

	var lenHeader [4]byte
	binary.LittleEndian.PutUint32(lenHeader[:], uint32(buf.Len()))
	if _, err := w.Write(lenHeader[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionBroken, err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionBroken, err)
	}
	return nil
}

// Decode reads exactly one framed message from r: four length bytes, then
// that many payload bytes, looping over short reads. A read returning 0
// bytes before completion means the connection is broken.
func Decode(r io.Reader) (MessageKind, WithRPCHeader, error) {
	var lenHeader [4]byte
	if err := readFull(r, lenHeader[:]); err != nil {
		return 0, nil, err
	}
	length := binary.LittleEndian.Uint32(lenHeader[:])

	payload := make([]byte, length)
	if err := readFull(r, payload); err != nil {
		return 0, nil, err
	}

	var env Envelope
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&env); err != nil {
		return 0, nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	if env.Body == nil {
		return 0, nil, ErrUnknownKind
	}
	return env.Kind, env.Body, nil
}

// readFull loops over short reads until exactly len(buf) bytes have been
// read, or the connection is declared broken on a zero-byte read.
func readFull(r io.Reader, buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := r.Read(buf[read:])
		if n == 0 && err == nil {
			return fmt.Errorf("%w: zero-byte read", ErrConnectionBroken)
		}
		read += n
		if err != nil {
			if err == io.EOF && read == len(buf) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrConnectionBroken, err)
		}
	}
	return nil
}

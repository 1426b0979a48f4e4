package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func TestCodec_RoundTrip(t *testing.T) {
	header := RPCHeader{ProtocolVersion: "1.0.0"}
	cases := []struct {
		kind MessageKind
		body WithRPCHeader
	}{
		{ConnectRequest, ConnectRequestMsg{RPCHeader: header, Password: "secret", Port: 11111, MaxFileSize: 10, MaxFileSysSize: 100, CurrFileSysSize: 5}},
		{ConnectResponse, ConnectResponseMsg{RPCHeader: header, Successful: true}},
		{DisconnectRequest, DisconnectRequestMsg{RPCHeader: header, CheckForUnreplicated: true, Port: 11111}},
		{PeerList, PeerListMsg{RPCHeader: header, Peers: []PeerAddress{{Host: "127.0.0.1", Port: 11111, Name: "A"}}}},
		{FileData, FileDataMsg{RPCHeader: header, FileModel: FileModel{Path: "file1.txt", Checksum: []byte{1, 2, 3}, Size: 5, LatestVersion: 1, Data: []byte("hello")}}},
		{FileChanged, FileChangedMsg{RPCHeader: header, FileModel: FileModel{Path: "file1.txt"}, Port: 11112, StartOffset: 0}},
		{ListRequest, ListRequestMsg{RPCHeader: header, DirPath: "", HasDirPath: false}},
		{ArchiveResponse, ArchiveResponseMsg{RPCHeader: header, FilePath: "file1.txt", Archived: true}},
	}

	for _, tc := range cases {
		var buf bytes.Buffer
		if err := Encode(&buf, tc.kind, tc.body); err != nil {
			t.Fatalf("encode %s: %v", tc.kind, err)
		}

		kind, body, err := Decode(&buf)
		if err != nil {
			t.Fatalf("decode %s: %v", tc.kind, err)
		}
		if kind != tc.kind {
			t.Fatalf("kind mismatch: got %s want %s", kind, tc.kind)
		}
		if !reflect.DeepEqual(body, tc.body) {
			t.Fatalf("body mismatch for %s: got %#v want %#v", tc.kind, body, tc.body)
		}
	}
}

func TestCodec_ShortReadIsBroken(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, ConnectRequest, ConnectRequestMsg{}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	truncated := bytes.NewReader(buf.Bytes()[:2])
	if _, _, err := Decode(truncated); err == nil {
		t.Fatalf("expected error decoding truncated frame")
	}
}

func TestMessageKind_String(t *testing.T) {
	if ConnectRequest.String() != "CONNECT_REQUEST" {
		t.Fatalf("unexpected string: %s", ConnectRequest.String())
	}
	if MessageKind(255).String() != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for unregistered kind")
	}
}

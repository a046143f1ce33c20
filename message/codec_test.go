package message

import (
	"reflect"
	"testing"

	"github.com/kelsemo/leafcore/core"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Message{
		ReqServerType{},
		RespServerType{ServerType: ServerType{Kind: ServerKindText, UUID: 0xdeadbeef}},
		ReqChatRegistration{},
		ReqChatClients{},
		RespClientList{Clients: []core.NodeId{1, 42, 123}},
		ReqChatSend{To: 7, ChatMsg: "hi"},
		RespChatFrom{From: 5, ChatMsg: "hi"},
		ErrNotExistentClient{},
		ReqFilesList{},
		RespFilesList{Links: []Link{"helloworld", "plophub"}},
		ReqFile{Link: "helloworld"},
		RespFile{File: FileWithData{
			File:        "Hello, World!",
			RelatedData: map[string]uint64{"chicken.jpeg": 42},
		}},
		ErrNotFound{},
		ReqMedia{Link: "chicken.jpeg"},
		RespMedia{Data: []byte{0x01, 0x02, 0x03}},
		ErrUnsupportedRequestType{},
	}

	for _, m := range cases {
		t.Run(m.messageKind().String(), func(t *testing.T) {
			encoded := Encode(m)
			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(m, decoded) {
				t.Errorf("round trip mismatch: got %#v, want %#v", decoded, m)
			}
		})
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Error("Decode(nil) succeeded, want error")
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	if _, err := Decode([]byte{0xff}); err == nil {
		t.Error("Decode of unrecognized tag succeeded, want error")
	}
}

func TestDecodeTruncated(t *testing.T) {
	encoded := Encode(RespChatFrom{From: 5, ChatMsg: "hello there"})
	if _, err := Decode(encoded[:len(encoded)-2]); err == nil {
		t.Error("Decode of truncated payload succeeded, want error")
	}
}

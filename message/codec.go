package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kelsemo/leafcore/core"
)

// Encode serializes a Message into its wire representation: a leading tag
// byte followed by the variant's fields, each length-prefixed where
// variable-sized (uint32, little-endian, matching the fixed-width-header
// convention used throughout this codebase's wire formats).
func Encode(m Message) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.messageKind()))

	switch v := m.(type) {
	case ReqServerType, ReqChatRegistration, ReqChatClients,
		ErrNotExistentClient, ReqFilesList, ErrNotFound,
		ErrUnsupportedRequestType:
		// Tag only; no fields.

	case RespServerType:
		buf.WriteByte(byte(v.ServerType.Kind))
		writeU64(&buf, v.ServerType.UUID)

	case RespClientList:
		writeU32(&buf, uint32(len(v.Clients)))
		for _, id := range v.Clients {
			writeU16(&buf, uint16(id))
		}

	case ReqChatSend:
		writeU16(&buf, uint16(v.To))
		writeString(&buf, v.ChatMsg)

	case RespChatFrom:
		writeU16(&buf, uint16(v.From))
		writeString(&buf, v.ChatMsg)

	case RespFilesList:
		writeU32(&buf, uint32(len(v.Links)))
		for _, l := range v.Links {
			writeString(&buf, string(l))
		}

	case ReqFile:
		writeString(&buf, string(v.Link))

	case RespFile:
		writeString(&buf, v.File.File)
		writeU32(&buf, uint32(len(v.File.RelatedData)))
		for name, val := range v.File.RelatedData {
			writeString(&buf, name)
			writeU64(&buf, val)
		}

	case ReqMedia:
		writeString(&buf, string(v.Link))

	case RespMedia:
		writeBytes(&buf, v.Data)

	default:
		panic(fmt.Sprintf("message: Encode: unhandled variant %T", m))
	}

	return buf.Bytes()
}

// Decode parses a wire-format message. It returns core.ErrParse (wrapped)
// for anything truncated or carrying an unrecognized tag — the only error
// path spec.md §3 describes for message conversion.
func Decode(data []byte) (Message, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("message: empty payload: %w", core.ErrParse)
	}
	tag := Tag(data[0])
	r := bytes.NewReader(data[1:])

	switch tag {
	case TagReqServerType:
		return ReqServerType{}, nil
	case TagReqChatRegistration:
		return ReqChatRegistration{}, nil
	case TagReqChatClients:
		return ReqChatClients{}, nil
	case TagErrNotExistentClient:
		return ErrNotExistentClient{}, nil
	case TagReqFilesList:
		return ReqFilesList{}, nil
	case TagErrNotFound:
		return ErrNotFound{}, nil
	case TagErrUnsupportedRequestType:
		return ErrUnsupportedRequestType{}, nil

	case TagRespServerType:
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, wrapParse(err)
		}
		uuid, err := readU64(r)
		if err != nil {
			return nil, wrapParse(err)
		}
		return RespServerType{ServerType: ServerType{Kind: ServerKind(kindByte), UUID: uuid}}, nil

	case TagRespClientList:
		count, err := readU32(r)
		if err != nil {
			return nil, wrapParse(err)
		}
		clients := make([]core.NodeId, 0, count)
		for i := uint32(0); i < count; i++ {
			id, err := readU16(r)
			if err != nil {
				return nil, wrapParse(err)
			}
			clients = append(clients, core.NodeId(id))
		}
		return RespClientList{Clients: clients}, nil

	case TagReqChatSend:
		to, err := readU16(r)
		if err != nil {
			return nil, wrapParse(err)
		}
		msg, err := readString(r)
		if err != nil {
			return nil, wrapParse(err)
		}
		return ReqChatSend{To: core.NodeId(to), ChatMsg: msg}, nil

	case TagRespChatFrom:
		from, err := readU16(r)
		if err != nil {
			return nil, wrapParse(err)
		}
		msg, err := readString(r)
		if err != nil {
			return nil, wrapParse(err)
		}
		return RespChatFrom{From: core.NodeId(from), ChatMsg: msg}, nil

	case TagRespFilesList:
		count, err := readU32(r)
		if err != nil {
			return nil, wrapParse(err)
		}
		links := make([]Link, 0, count)
		for i := uint32(0); i < count; i++ {
			s, err := readString(r)
			if err != nil {
				return nil, wrapParse(err)
			}
			links = append(links, Link(s))
		}
		return RespFilesList{Links: links}, nil

	case TagReqFile:
		s, err := readString(r)
		if err != nil {
			return nil, wrapParse(err)
		}
		return ReqFile{Link: Link(s)}, nil

	case TagRespFile:
		file, err := readString(r)
		if err != nil {
			return nil, wrapParse(err)
		}
		count, err := readU32(r)
		if err != nil {
			return nil, wrapParse(err)
		}
		related := make(map[string]uint64, count)
		for i := uint32(0); i < count; i++ {
			name, err := readString(r)
			if err != nil {
				return nil, wrapParse(err)
			}
			val, err := readU64(r)
			if err != nil {
				return nil, wrapParse(err)
			}
			related[name] = val
		}
		return RespFile{File: FileWithData{File: file, RelatedData: related}}, nil

	case TagReqMedia:
		s, err := readString(r)
		if err != nil {
			return nil, wrapParse(err)
		}
		return ReqMedia{Link: Link(s)}, nil

	case TagRespMedia:
		b, err := readBytes(r)
		if err != nil {
			return nil, wrapParse(err)
		}
		return RespMedia{Data: b}, nil

	default:
		return nil, fmt.Errorf("message: unrecognized tag %d: %w", tag, core.ErrParse)
	}
}

func wrapParse(err error) error {
	return fmt.Errorf("message: truncated payload: %w: %w", err, core.ErrParse)
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeU32(buf, uint32(len(b)))
	buf.Write(b)
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	return io.ReadFull(r, b)
}

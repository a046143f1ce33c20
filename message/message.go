// Package message defines the application-level request/response surface
// the engine hands to (and receives from) a pluggable protocol (spec.md §6),
// and the wire codec that turns a Message into an ordered run of
// core.Fragment values and back.
package message

import "github.com/kelsemo/leafcore/core"

// Link identifies a file or media blob in the file/media catalogs.
type Link string

// FileWithData is a text-protocol document plus any side files it
// references (e.g. embedded images), keyed by filename.
type FileWithData struct {
	File        string
	RelatedData map[string]uint64
}

// ServerType identifies which application protocol a server leaf runs.
// Text and Media optionally carry a uuid used for client-side caching
// (spec.md §9.4 — optional identification metadata, not required for
// correctness).
type ServerType struct {
	Kind ServerKind
	UUID uint64 // meaningful only for ServerKindText and ServerKindMedia
}

type ServerKind uint8

const (
	ServerKindChat ServerKind = iota
	ServerKindText
	ServerKindMedia
)

func (k ServerKind) String() string {
	switch k {
	case ServerKindChat:
		return "chat"
	case ServerKindText:
		return "text"
	case ServerKindMedia:
		return "media"
	default:
		return "unknown"
	}
}

// Message is the tagged union of request/response/error variants a
// protocol exchanges with its peers (spec.md §6). KindOf lets callers
// switch on the variant without a type assertion chain in the common case
// (logging, metrics); the concrete type itself remains the idiomatic way
// to extract fields.
type Message interface {
	messageKind() Tag
}

// Tag names a Message variant for the wire codec and for logging.
type Tag uint8

const (
	TagReqServerType Tag = iota
	TagRespServerType
	TagReqChatRegistration
	TagReqChatClients
	TagRespClientList
	TagReqChatSend
	TagRespChatFrom
	TagErrNotExistentClient
	TagReqFilesList
	TagRespFilesList
	TagReqFile
	TagRespFile
	TagErrNotFound
	TagReqMedia
	TagRespMedia
	TagErrUnsupportedRequestType
)

func (t Tag) String() string {
	switch t {
	case TagReqServerType:
		return "ReqServerType"
	case TagRespServerType:
		return "RespServerType"
	case TagReqChatRegistration:
		return "ReqChatRegistration"
	case TagReqChatClients:
		return "ReqChatClients"
	case TagRespClientList:
		return "RespClientList"
	case TagReqChatSend:
		return "ReqChatSend"
	case TagRespChatFrom:
		return "RespChatFrom"
	case TagErrNotExistentClient:
		return "ErrNotExistentClient"
	case TagReqFilesList:
		return "ReqFilesList"
	case TagRespFilesList:
		return "RespFilesList"
	case TagReqFile:
		return "ReqFile"
	case TagRespFile:
		return "RespFile"
	case TagErrNotFound:
		return "ErrNotFound"
	case TagReqMedia:
		return "ReqMedia"
	case TagRespMedia:
		return "RespMedia"
	case TagErrUnsupportedRequestType:
		return "ErrUnsupportedRequestType"
	default:
		return "Unknown"
	}
}

type ReqServerType struct{}

func (ReqServerType) messageKind() Tag { return TagReqServerType }

type RespServerType struct{ ServerType ServerType }

func (RespServerType) messageKind() Tag { return TagRespServerType }

type ReqChatRegistration struct{}

func (ReqChatRegistration) messageKind() Tag { return TagReqChatRegistration }

type ReqChatClients struct{}

func (ReqChatClients) messageKind() Tag { return TagReqChatClients }

type RespClientList struct{ Clients []core.NodeId }

func (RespClientList) messageKind() Tag { return TagRespClientList }

type ReqChatSend struct {
	To      core.NodeId
	ChatMsg string
}

func (ReqChatSend) messageKind() Tag { return TagReqChatSend }

type RespChatFrom struct {
	From    core.NodeId
	ChatMsg string
}

func (RespChatFrom) messageKind() Tag { return TagRespChatFrom }

type ErrNotExistentClient struct{}

func (ErrNotExistentClient) messageKind() Tag { return TagErrNotExistentClient }

type ReqFilesList struct{}

func (ReqFilesList) messageKind() Tag { return TagReqFilesList }

type RespFilesList struct{ Links []Link }

func (RespFilesList) messageKind() Tag { return TagRespFilesList }

type ReqFile struct{ Link Link }

func (ReqFile) messageKind() Tag { return TagReqFile }

type RespFile struct{ File FileWithData }

func (RespFile) messageKind() Tag { return TagRespFile }

type ErrNotFound struct{}

func (ErrNotFound) messageKind() Tag { return TagErrNotFound }

type ReqMedia struct{ Link Link }

func (ReqMedia) messageKind() Tag { return TagReqMedia }

type RespMedia struct{ Data []byte }

func (RespMedia) messageKind() Tag { return TagRespMedia }

type ErrUnsupportedRequestType struct{}

func (ErrUnsupportedRequestType) messageKind() Tag { return TagErrUnsupportedRequestType }

// KindOf returns the wire tag for any Message. Only the variants defined in
// this package implement Message, since messageKind is unexported.
func KindOf(m Message) Tag {
	return m.messageKind()
}

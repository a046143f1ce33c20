package media

import (
	"testing"

	"github.com/kelsemo/leafcore/core"
	"github.com/kelsemo/leafcore/engine"
	"github.com/kelsemo/leafcore/message"
)

type fakeSender struct {
	sent []core.Packet
}

func (f *fakeSender) Send(pkt core.Packet) error {
	f.sent = append(f.sent, pkt)
	return nil
}

func newTestCtx(t *testing.T, peer core.NodeId) (*engine.SendContext, *fakeSender) {
	t.Helper()
	fs := &fakeSender{}
	leaf := engine.New(engine.Config{
		Self:           255,
		ControllerSend: make(chan engine.LeafEvent, 64),
		NeighborSend:   map[core.NodeId]engine.PacketSender{peer: fs},
	})
	return engine.NewTestSendContext(leaf), fs
}

func decodeOne(t *testing.T, pkt core.Packet) message.Message {
	t.Helper()
	frag, ok := pkt.Kind.(core.MsgFragment)
	if !ok {
		t.Fatalf("expected a MsgFragment packet, got %T", pkt.Kind)
	}
	msg, err := message.FromFragments([]core.Fragment{frag.Fragment})
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	return msg
}

func TestReqServerTypeRespondsMedia(t *testing.T) {
	ctx, fs := newTestCtx(t, 1)
	s := New(Config{})

	s.OnMessage(ctx, 1, message.ReqServerType{}, 1)

	resp := decodeOne(t, fs.sent[0]).(message.RespServerType)
	if resp.ServerType.Kind != message.ServerKindMedia {
		t.Fatalf("expected ServerKindMedia, got %v", resp.ServerType.Kind)
	}
}

func TestReqMediaHitAndMiss(t *testing.T) {
	ctx, fs := newTestCtx(t, 1)
	s := New(Config{Blobs: map[message.Link][]byte{"chicken.jpeg": {1, 2, 3}}})

	s.OnMessage(ctx, 1, message.ReqMedia{Link: "chicken.jpeg"}, 7)
	hit := decodeOne(t, fs.sent[0]).(message.RespMedia)
	if string(hit.Data) != string([]byte{1, 2, 3}) {
		t.Fatalf("unexpected blob data: %v", hit.Data)
	}

	fs.sent = nil
	s.OnMessage(ctx, 1, message.ReqMedia{Link: "missing"}, 8)
	if _, ok := decodeOne(t, fs.sent[0]).(message.ErrNotFound); !ok {
		t.Fatalf("expected ErrNotFound for a missing blob")
	}
}

package engine

import (
	"log/slog"
	"reflect"
	"testing"

	"github.com/kelsemo/leafcore/core"
	"github.com/kelsemo/leafcore/message"
	"github.com/kelsemo/leafcore/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const self core.NodeId = 99

// testLeaf wires one Leaf with a single neighbor (peer 0) reachable over
// an in-process channel pair, plus a recording protocol. It mirrors the
// two-node fixtures the §8 end-to-end scenarios describe.
type testLeaf struct {
	leaf     *Leaf
	toLeaf   *ChannelSender // what peer 0 sends on; arrives on leaf.packetRecv
	fromLeaf <-chan core.Packet
	events   chan LeafEvent
	commands chan LeafCommand
	mx       *metrics.Metrics
	received []recordedMessage
}

type recordedMessage struct {
	peer    core.NodeId
	msg     message.Message
	session core.Session
}

func (tl *testLeaf) recordingProtocol() ProtocolFunc {
	return func(ctx *SendContext, peer core.NodeId, msg message.Message, session core.Session) {
		tl.received = append(tl.received, recordedMessage{peer: peer, msg: msg, session: session})
	}
}

func newTestLeaf(t *testing.T, protocol Protocol) *testLeaf {
	t.Helper()
	// peer0Sender writes packets peer 0 "sends"; peer0Recv is where peer 0
	// would read the leaf's replies from — i.e. the leaf's outbound
	// channel, which this test reads directly as tl.fromLeaf.
	peer0Sender, peer0Recv, leafSender, leafRecv := NewChannelPair(16)

	tl := &testLeaf{toLeaf: peer0Sender, fromLeaf: peer0Recv}
	if protocol == nil {
		protocol = tl.recordingProtocol()
	}

	events := make(chan LeafEvent, 64)
	commands := make(chan LeafCommand, 4)
	tl.events = events
	tl.commands = commands
	tl.mx = metrics.NewWithRegistry(prometheus.NewRegistry())
	tl.leaf = New(Config{
		Self:           self,
		ControllerSend: events,
		ControllerRecv: commands,
		PacketRecv:     leafRecv,
		NeighborSend:   map[core.NodeId]PacketSender{0: leafSender},
		Protocol:       protocol,
		Logger:         slog.New(slog.DiscardHandler),
		Metrics:        tl.mx,
	})
	return tl
}

// directRoute is the route peer-0-originated traffic carries: [0, self].
func directRoute() core.Route {
	return core.NewRoute(0, self)
}

func TestServerTypeProbeSingleFragment(t *testing.T) {
	// S1
	tl := newTestLeaf(t, nil)

	frags := message.ToFragments(message.ReqServerType{})
	if len(frags) != 1 {
		t.Fatalf("expected ReqServerType to encode to 1 fragment, got %d", len(frags))
	}
	pkt := core.Packet{Route: directRoute(), Session: 5, Kind: core.MsgFragment{Fragment: frags[0]}}
	tl.toLeaf.Send(pkt)
	tl.leaf.Step()

	ack := mustRecvPacket(t, tl.fromLeaf)
	if _, ok := ack.Kind.(core.Ack); !ok {
		t.Fatalf("expected Ack, got %T", ack.Kind)
	}
	if ack.Session != 5 {
		t.Fatalf("expected ack session 5, got %d", ack.Session)
	}

	if len(tl.received) != 1 {
		t.Fatalf("expected exactly one reassembled message, got %d", len(tl.received))
	}
	if _, ok := tl.received[0].msg.(message.ReqServerType); !ok {
		t.Fatalf("expected ReqServerType, got %T", tl.received[0].msg)
	}
	if tl.received[0].session != 5 {
		t.Fatalf("expected session 5, got %d", tl.received[0].session)
	}
}

func TestFragmentWrongDestinationNacksWithoutMutatingState(t *testing.T) {
	tl := newTestLeaf(t, nil)

	wrongRoute := core.NewRoute(0, 7) // destination 7, not self (99)
	frag := core.Fragment{Index: 0, TotalFragments: 1, Payload: []byte("x")}
	tl.toLeaf.Send(core.Packet{Route: wrongRoute, Session: 1, Kind: core.MsgFragment{Fragment: frag}})
	tl.leaf.Step()

	pkt := mustRecvPacket(t, tl.fromLeaf)
	nack, ok := pkt.Kind.(core.Nack)
	if !ok {
		t.Fatalf("expected Nack, got %T", pkt.Kind)
	}
	if nack.NackKind.Reason != core.NackUnexpectedRecipient {
		t.Fatalf("expected UnexpectedRecipient, got %v", nack.NackKind.Reason)
	}
	if len(tl.received) != 0 {
		t.Fatalf("expected no reassembled message, got %d", len(tl.received))
	}
	if _, ok := tl.leaf.RoutingTable().Get(0); !ok {
		t.Fatalf("expected the original direct route to peer 0 to remain from leaf construction")
	}
}

func TestChatRegistrationThenListing(t *testing.T) {
	// S2 — exercised against a minimal inline roster rather than the real
	// chat protocol package, since only the core dispatch/session contract
	// is under test here. All three registering peers talk to the leaf
	// directly, so each gets its own channel pair and neighbor slot.
	roster := map[core.NodeId]bool{}
	protocol := ProtocolFunc(func(ctx *SendContext, peer core.NodeId, msg message.Message, session core.Session) {
		switch msg.(type) {
		case message.ReqChatRegistration:
			roster[peer] = true
		case message.ReqChatClients:
			ids := make([]core.NodeId, 0, len(roster))
			for id := range roster {
				ids = append(ids, id)
			}
			ctx.SendMessage(peer, message.RespClientList{Clients: ids}, &session)
		}
	})

	events := make(chan LeafEvent, 64)
	neighbors := map[core.NodeId]PacketSender{}
	recvChans := map[core.NodeId]chan core.Packet{}
	leafRecv := make(chan core.Packet, 64)
	for _, peer := range []core.NodeId{1, 42, 123} {
		peerRecv := make(chan core.Packet, 16)
		recvChans[peer] = peerRecv
		neighbors[peer] = NewChannelSender(peerRecv)
	}
	leaf := New(Config{
		Self:           self,
		ControllerSend: events,
		ControllerRecv: make(chan LeafCommand, 1),
		PacketRecv:     leafRecv,
		NeighborSend:   neighbors,
		Protocol:       protocol,
		Logger:         slog.New(slog.DiscardHandler),
	})

	for _, peer := range []core.NodeId{1, 42, 123} {
		route := core.NewRoute(peer, self)
		frags := message.ToFragments(message.ReqChatRegistration{})
		leafRecv <- core.Packet{Route: route, Session: 1, Kind: core.MsgFragment{Fragment: frags[0]}}
		leaf.Step()
		<-recvChans[peer] // the ack
	}

	if len(roster) != 3 {
		t.Fatalf("expected 3 registered peers, got %d", len(roster))
	}

	route := core.NewRoute(1, self)
	frags := message.ToFragments(message.ReqChatClients{})
	leafRecv <- core.Packet{Route: route, Session: 9, Kind: core.MsgFragment{Fragment: frags[0]}}
	leaf.Step()
	<-recvChans[1] // the ack

	resp := <-recvChans[1]
	frag, ok := resp.IsFragment()
	if !ok || frag != 0 {
		t.Fatalf("expected the RespClientList's single fragment, got %+v", resp)
	}
	if resp.Session != 9 {
		t.Fatalf("expected session 9, got %d", resp.Session)
	}
	decoded, err := message.FromFragments([]core.Fragment{resp.Kind.(core.MsgFragment).Fragment})
	if err != nil {
		t.Fatalf("failed to decode RespClientList: %v", err)
	}
	list, ok := decoded.(message.RespClientList)
	if !ok {
		t.Fatalf("expected RespClientList, got %T", decoded)
	}
	got := map[core.NodeId]bool{}
	for _, id := range list.Clients {
		got[id] = true
	}
	for _, want := range []core.NodeId{1, 42, 123} {
		if !got[want] {
			t.Fatalf("expected peer %d in client list %v", want, list.Clients)
		}
	}
}

func TestFloodRequestProducesResponseAndRoute(t *testing.T) {
	// S6
	tl := newTestLeaf(t, nil)

	req := core.FloodRequest{
		FloodID:   123,
		Initiator: 0,
		PathTrace: []core.TraceHop{{Node: 0, Type: core.NodeTypeClient}},
	}
	route := core.NewRoute(0, self)
	tl.toLeaf.Send(core.Packet{Route: route, Session: 0, Kind: req})
	tl.leaf.Step()

	pkt := mustRecvPacket(t, tl.fromLeaf)
	resp, ok := pkt.Kind.(core.FloodResponse)
	if !ok {
		t.Fatalf("expected FloodResponse, got %T", pkt.Kind)
	}
	if resp.FloodID != 123 {
		t.Fatalf("expected flood id 123, got %d", resp.FloodID)
	}
	want := []core.TraceHop{{Node: 0, Type: core.NodeTypeClient}, {Node: self, Type: core.NodeTypeServer}}
	if len(resp.PathTrace) != len(want) || resp.PathTrace[0] != want[0] || resp.PathTrace[1] != want[1] {
		t.Fatalf("unexpected path trace: %+v", resp.PathTrace)
	}

	if _, ok := tl.leaf.RoutingTable().Get(0); !ok {
		t.Fatalf("expected a route to the initiator to be stored")
	}
}

func TestNackDroppedRetransmitsExactPacketWithoutNewSession(t *testing.T) {
	// S4 + S5: send a multi-fragment message out, then NACK one fragment.
	tl := newTestLeaf(t, nil)
	tl.leaf.RoutingTable().Set(0, core.NewDirectRoute(self, 0))

	longMsg := message.RespChatFrom{From: self, ChatMsg: string(make([]byte, message.MaxFragmentPayload*3+17))}
	ctx := &SendContext{side: tl.leaf.side}
	session := ctx.SendMessage(0, longMsg, nil)

	frags := message.ToFragments(longMsg)
	if len(frags) < 2 {
		t.Fatalf("expected a multi-fragment message, got %d fragments", len(frags))
	}
	for i := range frags {
		pkt := mustRecvPacket(t, tl.fromLeaf)
		idx, ok := pkt.IsFragment()
		if !ok || idx != uint64(i) {
			t.Fatalf("expected fragment %d in order, got %+v", i, pkt)
		}
		if pkt.Session != session {
			t.Fatalf("expected session %d, got %d", session, pkt.Session)
		}
	}

	original, ok := tl.leaf.History().Lookup(session, 2)
	if !ok {
		t.Fatalf("expected history entry for fragment 2")
	}

	nackRoute := core.NewRoute(0, self)
	tl.toLeaf.Send(core.Packet{
		Route:   nackRoute,
		Session: session,
		Kind:    core.Nack{FragmentIndex: 2, NackKind: core.NackKind{Reason: core.NackDropped}},
	})
	tl.leaf.Step()

	retransmitted := mustRecvPacket(t, tl.fromLeaf)
	idx, ok := retransmitted.IsFragment()
	if !ok || idx != 2 {
		t.Fatalf("expected a retransmission of fragment 2, got %+v", retransmitted)
	}
	if retransmitted.Session != session {
		t.Fatalf("expected retransmission to keep session %d, got %d", session, retransmitted.Session)
	}
	frag := retransmitted.Kind.(core.MsgFragment).Fragment
	wantFrag := original.Kind.(core.MsgFragment).Fragment
	if string(frag.Payload) != string(wantFrag.Payload) {
		t.Fatalf("retransmitted payload does not match the original")
	}
}

func TestRemoveSenderDropsDirectRouteOnly(t *testing.T) {
	tl := newTestLeaf(t, nil)
	tl.leaf.RoutingTable().Set(5, core.NewRoute(0, 5)) // a transit route through peer 0

	tl.leaf.handleCommand(RemoveSender{NodeID: 0})

	if _, ok := tl.leaf.RoutingTable().Get(0); ok {
		t.Fatalf("expected direct route to removed neighbor 0 to be gone")
	}
	if _, ok := tl.leaf.RoutingTable().Get(5); !ok {
		t.Fatalf("expected transit route to peer 5 to survive RemoveSender(0)")
	}
}

func TestSessionCounterMonotonicAcrossSends(t *testing.T) {
	tl := newTestLeaf(t, nil)
	tl.leaf.RoutingTable().Set(0, core.NewDirectRoute(self, 0))
	ctx := &SendContext{side: tl.leaf.side}

	var last core.Session
	for i := 0; i < 5; i++ {
		session := ctx.SendMessage(0, message.ReqChatClients{}, nil)
		if session <= last {
			t.Fatalf("expected strictly increasing sessions, got %d after %d", session, last)
		}
		last = session
		drainAll(tl.fromLeaf, message.ToFragments(message.ReqChatClients{}))
	}
}

func TestInboundMultiFragmentAcksEachThenDispatchesOnce(t *testing.T) {
	// S4 inbound: a 7-fragment message is ACKed per fragment in arrival
	// order, and dispatched exactly once, after the 7th arrival — whatever
	// order the fragments arrive in.
	tl := newTestLeaf(t, nil)

	data := make([]byte, message.MaxFragmentPayload*6+10)
	for i := range data {
		data[i] = byte(i)
	}
	msg := message.RespMedia{Data: data}
	frags := message.ToFragments(msg)
	if len(frags) != 7 {
		t.Fatalf("expected 7 fragments, got %d", len(frags))
	}

	arrival := []int{3, 0, 6, 1, 5, 2, 4}
	for n, i := range arrival {
		pkt := core.Packet{Route: directRoute(), Session: 777, Kind: core.MsgFragment{Fragment: frags[i]}}
		tl.toLeaf.Send(pkt)
		tl.leaf.Step()

		ack := mustRecvPacket(t, tl.fromLeaf)
		a, ok := ack.Kind.(core.Ack)
		if !ok {
			t.Fatalf("expected Ack after fragment %d, got %T", i, ack.Kind)
		}
		if a.FragmentIndex != frags[i].Index || ack.Session != 777 {
			t.Fatalf("expected Ack{%d} on session 777, got Ack{%d} on %d", frags[i].Index, a.FragmentIndex, ack.Session)
		}

		if n < len(arrival)-1 && len(tl.received) != 0 {
			t.Fatalf("message dispatched after only %d of 7 fragments", n+1)
		}
	}

	if len(tl.received) != 1 {
		t.Fatalf("expected exactly one dispatched message, got %d", len(tl.received))
	}
	got, ok := tl.received[0].msg.(message.RespMedia)
	if !ok || !reflect.DeepEqual(got, msg) {
		t.Fatalf("reassembled message does not match the original")
	}
	if tl.leaf.PendingReassembly() != 0 {
		t.Fatalf("expected the reassembly entry to be removed on dispatch")
	}
}

func TestMetricsFollowPacketFlow(t *testing.T) {
	tl := newTestLeaf(t, nil)

	frags := message.ToFragments(message.ReqServerType{})
	tl.toLeaf.Send(core.Packet{Route: directRoute(), Session: 5, Kind: core.MsgFragment{Fragment: frags[0]}})
	tl.leaf.Step()

	if got := testutil.ToFloat64(tl.mx.PacketsReceived.WithLabelValues("msg_fragment")); got != 1 {
		t.Errorf("PacketsReceived{msg_fragment} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tl.mx.PacketsSent.WithLabelValues("ack")); got != 1 {
		t.Errorf("PacketsSent{ack} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tl.mx.MessagesDispatched); got != 1 {
		t.Errorf("MessagesDispatched = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tl.mx.ReassemblyPending); got != 0 {
		t.Errorf("ReassemblyPending = %v, want 0 after dispatch", got)
	}
}

func TestStepPrefersControllerWhenBothReady(t *testing.T) {
	// Both channels are ready before Step runs; the controller command must
	// win, so Kill takes effect and the queued packet is never processed.
	tl := newTestLeaf(t, nil)

	frags := message.ToFragments(message.ReqServerType{})
	tl.toLeaf.Send(core.Packet{Route: directRoute(), Session: 1, Kind: core.MsgFragment{Fragment: frags[0]}})
	tl.commands <- Kill{}

	if tl.leaf.Step() {
		t.Fatalf("expected Step to report the leaf stopped after Kill")
	}
	if len(tl.received) != 0 {
		t.Fatalf("expected the queued packet to be pre-empted by the controller command")
	}
	select {
	case <-tl.fromLeaf:
		t.Fatalf("expected no outbound packet after Kill pre-empted the data packet")
	default:
	}
}

func TestKillTerminatesRun(t *testing.T) {
	tl := newTestLeaf(t, nil)
	tl.commands <- Kill{}
	tl.leaf.Run() // returns promptly; a hang here fails the test by timeout
	if tl.leaf.Step() {
		t.Fatalf("expected Step to keep reporting stopped after Run returned")
	}
}

func TestRunStopsWhenBothInputChannelsClose(t *testing.T) {
	commands := make(chan LeafCommand)
	packets := make(chan core.Packet)
	leaf := New(Config{
		Self:           self,
		ControllerSend: make(chan LeafEvent, 4),
		ControllerRecv: commands,
		PacketRecv:     packets,
		Logger:         slog.New(slog.DiscardHandler),
		Metrics:        metrics.NewWithRegistry(prometheus.NewRegistry()),
	})

	close(commands)
	close(packets)
	leaf.Run() // must terminate rather than spin on the closed channels
}

func TestAddSenderCommandInstallsEndpointAndDirectRoute(t *testing.T) {
	tl := newTestLeaf(t, nil)

	recv := make(chan core.Packet, 8)
	tl.commands <- AddSender{NodeID: 7, Endpoint: NewChannelSender(recv)}
	tl.leaf.Step()

	route, ok := tl.leaf.RoutingTable().Get(7)
	if !ok {
		t.Fatalf("expected a direct route to the added neighbor")
	}
	if hop, ok := route.CurrentHop(); !ok || hop != 7 {
		t.Fatalf("expected current hop 7, got %v (ok=%v)", hop, ok)
	}

	ctx := &SendContext{side: tl.leaf.side}
	ctx.SendMessage(7, message.ReqServerType{}, nil)
	pkt := mustRecvPacket(t, recv)
	if _, ok := pkt.IsFragment(); !ok {
		t.Fatalf("expected the message fragment to reach the new neighbor, got %T", pkt.Kind)
	}
}

func mustRecvPacket(t *testing.T, ch <-chan core.Packet) core.Packet {
	t.Helper()
	select {
	case pkt := <-ch:
		return pkt
	default:
		t.Fatalf("expected a packet on the channel, got none")
		return core.Packet{}
	}
}

func drainAll(ch <-chan core.Packet, frags []core.Fragment) {
	for range frags {
		<-ch
	}
}

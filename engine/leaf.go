package engine

import (
	"log/slog"

	"github.com/kelsemo/leafcore/core"
	"github.com/kelsemo/leafcore/metrics"
)

// Config carries every constructor input a leaf needs (spec.md §6).
// NeighborSend, Protocol, and Logger are optional: a nil NeighborSend
// starts with no known neighbors, a nil Protocol drops every reassembled
// message with a warning rather than panicking, and a nil Logger falls
// back to slog.Default().
type Config struct {
	Self core.NodeId

	ControllerSend chan<- LeafEvent
	ControllerRecv <-chan LeafCommand
	PacketRecv     <-chan core.Packet

	NeighborSend map[core.NodeId]PacketSender
	Protocol     Protocol
	Logger       *slog.Logger

	// Metrics defaults to the process-wide metrics.Default() instance. A
	// process hosting several leaves should give each its own instance via
	// metrics.NewWithRegistry so per-leaf gauges don't overwrite each other.
	Metrics *metrics.Metrics
}

// Leaf is the per-leaf protocol engine: the packet I/O multiplexer,
// routing table, session allocator, send history, and reassembly buffer
// described in spec.md §2, driven by repeated calls to Step.
//
// A Leaf is not safe for concurrent use — every method is meant to run on
// the single cooperative goroutine that calls Run (spec.md §5).
type Leaf struct {
	self core.NodeId

	controllerSend chan<- LeafEvent
	controllerRecv <-chan LeafCommand
	packetRecv     <-chan core.Packet

	neighbors  map[core.NodeId]PacketSender
	routing    *RoutingTable
	sessions   *core.SessionAllocator
	history    *SendHistory
	reassembly *ReassemblyBuffer
	protocol   Protocol
	log        *slog.Logger
	metrics    *metrics.Metrics

	side    *sendSide
	running bool
}

// New builds a Leaf from cfg. Every neighbor present in cfg.NeighborSend
// is installed with an immediate direct route, exactly as AddSender would
// do for one added later (spec.md §4.1).
func New(cfg Config) *Leaf {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	neighbors := cfg.NeighborSend
	if neighbors == nil {
		neighbors = make(map[core.NodeId]PacketSender)
	}

	routing := NewRoutingTable()
	for id := range neighbors {
		routing.AddDirectNeighbor(cfg.Self, id)
	}

	sessions := &core.SessionAllocator{}
	history := NewSendHistory()

	m := cfg.Metrics
	if m == nil {
		m = metrics.Default()
	}

	l := &Leaf{
		self:           cfg.Self,
		controllerSend: cfg.ControllerSend,
		controllerRecv: cfg.ControllerRecv,
		packetRecv:     cfg.PacketRecv,
		neighbors:      neighbors,
		routing:        routing,
		sessions:       sessions,
		history:        history,
		reassembly:     NewReassemblyBuffer(),
		protocol:       cfg.Protocol,
		log:            logger.With("self", cfg.Self),
		metrics:        m,
		running:        true,
	}
	l.side = &sendSide{
		self:      cfg.Self,
		neighbors: neighbors,
		routing:   routing,
		sessions:  sessions,
		history:   history,
		events:    cfg.ControllerSend,
		log:       l.log,
		metrics:   m,
	}
	m.NeighborsConnected.Set(float64(len(neighbors)))
	m.RoutesKnown.Set(float64(routing.Len()))
	return l
}

// Step runs one iteration of the multiplexer (spec.md §4.1): it checks
// the controller channel non-blockingly first, and only falls through to
// a blocking wait across both channels — with the select runtime's
// uniform-random tie-break among ready cases — when the controller had
// nothing pending. This realizes the required bias ("controller commands
// pre-empt data when both are ready") without a language-level biased
// select primitive. It returns false once the leaf has been killed and
// should stop looping. A closed input channel is disabled rather than
// treated as ready; once both inputs are closed the leaf stops.
func (l *Leaf) Step() bool {
	if !l.running {
		return false
	}
	if l.controllerRecv == nil && l.packetRecv == nil {
		l.running = false
		return false
	}

	select {
	case cmd, ok := <-l.controllerRecv:
		if !ok {
			l.controllerRecv = nil
			return l.running
		}
		l.handleCommand(cmd)
		return l.running
	default:
	}

	select {
	case cmd, ok := <-l.controllerRecv:
		if !ok {
			l.controllerRecv = nil
			return l.running
		}
		l.handleCommand(cmd)
	case pkt, ok := <-l.packetRecv:
		if !ok {
			l.packetRecv = nil
			return l.running
		}
		l.handlePacket(pkt)
	}
	return l.running
}

// Run drives Step until the leaf is killed or both input channels close.
func (l *Leaf) Run() {
	for l.Step() {
	}
}

// handleCommand applies one controller command (spec.md §4.1).
func (l *Leaf) handleCommand(cmd LeafCommand) {
	switch c := cmd.(type) {
	case AddSender:
		l.neighbors[c.NodeID] = c.Endpoint
		l.routing.AddDirectNeighbor(l.self, c.NodeID)
		l.metrics.NeighborsConnected.Set(float64(len(l.neighbors)))
		l.metrics.RoutesKnown.Set(float64(l.routing.Len()))
	case RemoveSender:
		delete(l.neighbors, c.NodeID)
		l.routing.Remove(c.NodeID)
		l.metrics.NeighborsConnected.Set(float64(len(l.neighbors)))
		l.metrics.RoutesKnown.Set(float64(l.routing.Len()))
	case Kill:
		l.running = false
	default:
		l.log.Warn("unrecognized controller command ignored", "command", cmd)
	}
}

// RoutingTable exposes the leaf's routing table for diagnostics and tests.
func (l *Leaf) RoutingTable() *RoutingTable { return l.routing }

// History exposes the leaf's send history for diagnostics and tests.
func (l *Leaf) History() *SendHistory { return l.history }

// PendingReassembly reports how many fragment groups are in flight.
func (l *Leaf) PendingReassembly() int { return l.reassembly.PendingCount() }

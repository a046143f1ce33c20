// Package mqtt provides an MQTT binding for leaf-to-neighbor packet
// delivery. Packets are gob-encoded and published to per-neighbor topics
// of the form "{prefix}/{from}/{to}"; a leaf subscribes to its own
// "{prefix}/+/{self}" wildcard to receive traffic from any neighbor.
//
// The wire format and transport underneath are opaque to the engine
// (spec.md §6) — this package is one concrete binding alongside the
// in-process engine.ChannelSender used by tests and simulations.
package mqtt

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/kelsemo/leafcore/core"
	"github.com/kelsemo/leafcore/engine"
)

func init() {
	gob.Register(core.MsgFragment{})
	gob.Register(core.Ack{})
	gob.Register(core.Nack{})
	gob.Register(core.FloodRequest{})
	gob.Register(core.FloodResponse{})
	gob.Register(core.Unknown{})
}

// DefaultTopicPrefix is the default MQTT topic prefix for leaf packets.
const DefaultTopicPrefix = "leafcore"

// Event represents a transport connection state change.
type Event int

const (
	EventConnected Event = iota
	EventDisconnected
	EventReconnecting
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// StateHandler is called on transport state changes.
type StateHandler func(Event)

// Config holds the configuration for an MQTT transport.
type Config struct {
	// Broker is the MQTT broker URL (e.g., "tcp://broker.example.com:1883").
	Broker string
	// Username/Password for MQTT authentication. Leave empty if not required.
	Username string
	Password string
	// UseTLS enables TLS for the MQTT connection.
	UseTLS bool
	// ClientID is the MQTT client identifier. If empty, a random one is generated.
	ClientID string
	// TopicPrefix is the MQTT topic prefix (default: "leafcore").
	TopicPrefix string
	// Self is this leaf's node id; inbound packets are received on
	// "{TopicPrefix}/+/{Self}".
	Self core.NodeId
	// StateHandler is an optional callback for connection state changes.
	StateHandler StateHandler
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Transport is an MQTT binding shared by every neighbor of one leaf. Call
// NeighborSender to get the engine.PacketSender for a given neighbor, and
// Packets to get the channel to wire into engine.Config.PacketRecv.
type Transport struct {
	cfg    Config
	client paho.Client
	log    *slog.Logger

	mu        sync.RWMutex
	connected bool

	recv chan core.Packet
}

// New creates an MQTT transport for leaf cfg.Self. It does not connect
// until Start is called.
func New(cfg Config) *Transport {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Transport{
		cfg:  cfg,
		log:  cfg.Logger.WithGroup("mqtt").With("self", cfg.Self),
		recv: make(chan core.Packet, 64),
	}
}

// Packets returns the channel of packets received from any neighbor. Wire
// it in as engine.Config.PacketRecv.
func (t *Transport) Packets() <-chan core.Packet {
	return t.recv
}

// Start connects to the MQTT broker and subscribes to this leaf's inbound
// topic.
func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.Broker == "" {
		return errors.New("mqtt: broker URL is required")
	}

	clientID := t.cfg.ClientID
	if clientID == "" {
		clientID = "leafcore-" + randomString(16)
	}

	opts := paho.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetOnConnectHandler(t.onConnected).
		SetConnectionLostHandler(t.onConnectionLost).
		SetReconnectingHandler(t.onReconnecting)

	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
	}
	if t.cfg.Password != "" {
		opts.SetPassword(t.cfg.Password)
	}
	if t.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	t.client = paho.NewClient(opts)

	token := t.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return errors.New("mqtt: connection timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("mqtt: connecting to broker: %w", token.Error())
	}

	go func() {
		<-ctx.Done()
		t.Stop()
	}()
	return nil
}

// Stop gracefully disconnects from the MQTT broker.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		t.client.Disconnect(1000)
		t.connected = false
	}
	return nil
}

// IsConnected returns true if the transport is connected to the broker.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected && t.client != nil && t.client.IsConnected()
}

// NeighborSender returns the engine.PacketSender that publishes packets
// to neighbor `to` over this transport.
func (t *Transport) NeighborSender(to core.NodeId) engine.PacketSender {
	return &neighborSender{transport: t, to: to}
}

type neighborSender struct {
	transport *Transport
	to        core.NodeId
}

// Send gob-encodes the packet and publishes it to the neighbor's topic.
func (s *neighborSender) Send(pkt core.Packet) error {
	t := s.transport
	if !t.IsConnected() {
		return errors.New("mqtt: not connected")
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(pkt); err != nil {
		return fmt.Errorf("mqtt: encoding packet: %w", err)
	}

	topic := t.outboundTopic(s.to)
	token := t.client.Publish(topic, 0, false, buf.Bytes())
	if !token.WaitTimeout(10 * time.Second) {
		return errors.New("mqtt: timeout publishing")
	}
	return token.Error()
}

func (t *Transport) inboundTopic() string {
	return fmt.Sprintf("%s/+/%d", t.cfg.TopicPrefix, t.cfg.Self)
}

func (t *Transport) outboundTopic(to core.NodeId) string {
	return fmt.Sprintf("%s/%d/%d", t.cfg.TopicPrefix, t.cfg.Self, to)
}

func (t *Transport) subscribe() {
	topic := t.inboundTopic()
	t.client.Subscribe(topic, 0, t.handleMessage)
	t.log.Debug("subscribed to inbound topic", "topic", topic)
}

func (t *Transport) handleMessage(_ paho.Client, m paho.Message) {
	var pkt core.Packet
	if err := gob.NewDecoder(bytes.NewReader(m.Payload())).Decode(&pkt); err != nil {
		t.log.Warn("failed to decode packet payload", "topic", m.Topic(), "error", err)
		return
	}

	select {
	case t.recv <- pkt:
	default:
		t.log.Warn("dropping inbound packet: receive channel full", "topic", m.Topic())
	}
}

func (t *Transport) onConnected(_ paho.Client) {
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()

	t.subscribe()
	t.log.Info("connected to MQTT broker", "broker", t.cfg.Broker)
	t.notify(EventConnected)
}

func (t *Transport) onConnectionLost(_ paho.Client, err error) {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()

	t.log.Error("MQTT connection lost", "error", err)
	t.notify(EventDisconnected)
}

func (t *Transport) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	t.log.Info("reconnecting to MQTT broker")
	t.notify(EventReconnecting)
}

func (t *Transport) notify(ev Event) {
	if t.cfg.StateHandler != nil {
		t.cfg.StateHandler(ev)
	}
}

// neighborFromTopic extracts the publishing neighbor's id from an inbound
// topic of the form "{prefix}/{from}/{to}". Not used on the hot path (the
// packet's own Route carries the source).
func neighborFromTopic(topic string) (core.NodeId, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return 0, false
	}
	return core.NodeId(id), true
}

func randomString(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

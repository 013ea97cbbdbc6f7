// Package mqtt publishes probe status messages to an mqtt broker.
package mqtt

import (
	"context"
	"fmt"
	"sync/atomic"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/womat/debug"
)

// quiesce is the specified number of milliseconds to wait for existing work to be completed.
const (
	quiesce = 250
	// queueSize is the number of messages waiting for the broker
	queueSize = 8
)

// Handler contains the handler of the mqtt broker.
type Handler struct {
	client mqttlib.Client
	// queue holds the messages waiting to be published
	queue chan Message

	published atomic.Uint64
	dropped   atomic.Uint64
}

// Message contains the properties of the mqtt message.
type Message struct {
	Topic    string
	Payload  []byte
	Qos      byte
	Retained bool
}

// New generate a new mqtt broker client.
func New() *Handler {
	return &Handler{
		queue: make(chan Message, queueSize),
	}
}

// Connect connects to the mqtt broker.
// If no broker is defined, no mqtt message are send.
func (m *Handler) Connect(broker, clientID string) error {
	if broker == "" {
		return nil
	}

	opts := mqttlib.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)
	m.client = mqttlib.NewClient(opts)

	if err := m.reconnect(); err != nil {
		return fmt.Errorf("connect mqtt broker %v: %w", broker, err)
	}
	debug.InfoLog.Printf("connected to mqtt broker %v", broker)
	return nil
}

// Enabled reports whether a broker is configured.
func (m *Handler) Enabled() bool {
	return m.client != nil
}

func (m *Handler) reconnect() error {
	t := m.client.Connect()
	<-t.Done()
	return t.Error()
}

// Disconnect will end the connection to the broker.
func (m *Handler) Disconnect() error {
	if m.client == nil {
		return nil
	}

	m.client.Disconnect(quiesce)
	return nil
}

// Publish queues msg without blocking.
// It returns false if no broker is configured or the queue is full.
func (m *Handler) Publish(msg Message) bool {
	if m.client == nil || msg.Topic == "" {
		return false
	}
	select {
	case m.queue <- msg:
		return true
	default:
		m.dropped.Add(1)
		debug.DebugLog.Printf("mqtt queue full, message to %v dropped", msg.Topic)
		return false
	}
}

// Counters returns the number of published and dropped messages.
func (m *Handler) Counters() (published, dropped uint64) {
	return m.published.Load(), m.dropped.Load()
}

// Service publishes queued messages until ctx is done.
func (m *Handler) Service(ctx context.Context) {
	for {
		var msg Message
		select {
		case <-ctx.Done():
			return
		case msg = <-m.queue:
		}

		if !m.client.IsConnected() {
			debug.DebugLog.Printf("mqtt broker isn't connected, reconnect it")

			if err := m.reconnect(); err != nil {
				debug.ErrorLog.Printf("can't reconnect to mqtt broker %v", err)
				continue
			}
		}

		debug.DebugLog.Printf("publishing %v bytes to topic %v", len(msg.Payload), msg.Topic)
		t := m.client.Publish(msg.Topic, msg.Qos, msg.Retained, msg.Payload)

		// the asynchronous nature of this library makes it easy to forget to check for errors.
		go func(topic string) {
			<-t.Done()
			if err := t.Error(); err != nil {
				debug.ErrorLog.Printf("publishing topic %v: %v", topic, err)
				return
			}
			m.published.Add(1)
		}(msg.Topic)
	}
}

package mqtt

import (
	"errors"
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/home-bms/internal/logic"
)

// Options configure a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string // empty means "home-bms-" plus a random suffix
	Topics     Topics
	BufferSize int        // messages kept while disconnected
	OnStatus   func(bool) // called on connect and connection loss; may be nil
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the broker is unreachable are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	out    *outbox
}

// NewRealPublisher creates a publisher for the given broker. It waits a
// bounded time for the first connection; if that fails it keeps retrying
// in the background and buffers until connected.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, errors.New("no broker configured")
	}
	if o.ClientID == "" {
		o.ClientID = "home-bms-" + uuid.NewString()[:8]
	}
	if o.Topics == (Topics{}) {
		o.Topics = DefaultTopics()
	}

	p := &RealPublisher{topics: o.Topics}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(o.Topics.System, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Printf("mqtt connected to %s", o.Broker)
			if o.OnStatus != nil {
				o.OnStatus(true)
			}
			if n := p.out.flush(); n > 0 {
				log.Printf("mqtt replayed %d buffered messages", n)
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt connection lost: %v", err)
			if o.OnStatus != nil {
				o.OnStatus(false)
			}
		})

	p.client = paho.NewClient(opts)
	p.out = newOutbox(o.BufferSize, p.send, p.client.IsConnectionOpen)

	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt connect timeout, retrying in background")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) send(m message) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Publish sends an event log entry to the MQTT broker.
func (p *RealPublisher) Publish(entry logic.LogEntry) error {
	payload, err := FormatPayload(entry)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.out.publish(message{topic: p.topics.Events, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - lifecycle events should arrive
	return p.out.publish(message{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.out.pending(); n > 0 {
		log.Printf("mqtt closing with %d unsent messages", n)
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

// Package bmfeed implements a client for the Brandmeister last-heard MQTT
// feed.
//
// Brandmeister publishes one JSON envelope per network event (Session-Start,
// Session-Update, Session-Stop) describing who is transmitting on which
// talkgroup. This client connects to the broker, subscribes to the configured
// topic, normalizes each payload into the canonical session.Event, and feeds
// a buffered channel consumed by the session tracker.
//
// Features:
//   - MQTT auto-reconnect with 1-minute max interval
//   - Payload normalization with malformed-input counters
//   - Buffered event channel (1000 events) with non-blocking sends
//   - Connection state callbacks (onConnect, onConnectionLost)
//
// Delivery is best-effort by design: the feed guarantees neither ordering
// nor exactly-once delivery, so the tracker downstream is built to tolerate
// duplicates and gaps.
package bmfeed

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"bmwatch/session"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client maintains a persistent MQTT connection to the Brandmeister feed.
//
// Thread safety: the paho library invokes message callbacks on its own
// goroutines; eventChan uses non-blocking sends so a slow consumer drops
// events instead of stalling the broker connection.
type Client struct {
	broker    string              // MQTT broker hostname
	port      int                 // MQTT broker port
	topic     string              // topic filter, e.g. "LH/#"
	client    mqtt.Client         // paho client instance
	eventChan chan *session.Event // normalized events (buffered 1000)
	shutdown  chan struct{}

	malformed atomic.Uint64
	dropped   atomic.Uint64

	// OnConnectionLost, when set, runs after the broker connection drops, so
	// the owner can clear live sessions the feed can no longer confirm.
	OnConnectionLost func(err error)
}

// NewClient creates a Brandmeister feed client.
func NewClient(broker string, port int, topic string) *Client {
	return &Client{
		broker:    broker,
		port:      port,
		topic:     topic,
		eventChan: make(chan *session.Event, 1000),
		shutdown:  make(chan struct{}),
	}
}

// Connect establishes the connection to the Brandmeister MQTT broker.
func (c *Client) Connect() error {
	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", c.broker, c.port)
	opts.AddBroker(brokerURL)

	// Client ID with timestamp for uniqueness across restarts.
	opts.SetClientID(fmt.Sprintf("bmwatch-%d", time.Now().Unix()))

	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)

	log.Printf("Connecting to Brandmeister feed at %s...", brokerURL)
	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to Brandmeister feed: %w", token.Error())
	}
	log.Println("Connected to Brandmeister feed")
	return nil
}

// onConnect is called when the connection is established (and on every
// reconnect, which re-subscribes automatically).
func (c *Client) onConnect(client mqtt.Client) {
	log.Printf("Brandmeister: connected, subscribing to topic: %s", c.topic)
	token := client.Subscribe(c.topic, 0, c.messageHandler)
	if token.Wait() && token.Error() != nil {
		log.Printf("Brandmeister: failed to subscribe: %v", token.Error())
		return
	}
	log.Println("Brandmeister: subscribed, receiving events...")
}

// onConnectionLost is called when the connection is lost.
func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("Brandmeister: connection lost: %v", err)
	log.Println("Brandmeister: will attempt to reconnect...")
	if c.OnConnectionLost != nil {
		c.OnConnectionLost(err)
	}
}

// messageHandler normalizes incoming MQTT messages.
func (c *Client) messageHandler(client mqtt.Client, msg mqtt.Message) {
	ev, err := c.decode(msg.Payload())
	if err != nil {
		return
	}
	select {
	case c.eventChan <- ev:
	default:
		c.dropped.Add(1)
	}
}

// decode runs one payload through the normalizer, counting failures.
// Malformed payloads are a debug-level diagnostic, never fatal.
func (c *Client) decode(payload []byte) (*session.Event, error) {
	ev, err := session.Normalize(payload)
	if err != nil {
		c.malformed.Add(1)
		if errors.Is(err, session.ErrMalformedPayload) {
			log.Printf("Brandmeister: dropping payload: %v", err)
		}
		return nil, err
	}
	return ev, nil
}

// Events returns the channel of normalized feed events.
func (c *Client) Events() <-chan *session.Event {
	return c.eventChan
}

// IsConnected reports whether the client is connected to the broker.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// Counters returns the number of malformed payloads and channel drops so far.
func (c *Client) Counters() (malformed, dropped uint64) {
	return c.malformed.Load(), c.dropped.Load()
}

// Stop closes the feed connection.
func (c *Client) Stop() {
	log.Println("Stopping Brandmeister feed client...")
	if c.client != nil && c.client.IsConnected() {
		c.client.Unsubscribe(c.topic)
		c.client.Disconnect(250) // wait up to 250ms for clean disconnect
	}
	close(c.shutdown)
	log.Println("Brandmeister feed client stopped")
}

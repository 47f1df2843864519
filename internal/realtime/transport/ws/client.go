package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"

	"golang.org/x/net/websocket"

	apperrors "github.com/campuslink/campuslink/internal/platform/errors"
	"github.com/campuslink/campuslink/internal/platform/timeouts"
	"github.com/campuslink/campuslink/internal/realtime/change"
	"github.com/campuslink/campuslink/internal/realtime/registry"
)

const (
	tokenCookieName = "cl_token"

	maxDecodeErrorsPerConn = 3
)

// EventSink receives decoded change events. Dispatch happens on the channel's
// read goroutine; sinks must return quickly.
type EventSink interface {
	HandleEvent(event change.Event)
}

// Config defines how the client reaches the sync gateway.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://gateway.internal/ws.
	URL string
	// Origin is sent during the websocket handshake.
	Origin string
	// Token supplies the current access token per dial, so refreshed tokens
	// are picked up by reconnects without re-wiring the client.
	Token func() string
}

// Client opens one websocket connection per push channel and decodes inbound
// change frames into events for the sink.
// It implements the registry's ChannelCloser.
type Client struct {
	cfg  Config
	sink EventSink
}

// NewClient validates cfg and creates a client dispatching into sink.
func NewClient(cfg Config, sink EventSink) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("websocket url is required")
	}
	if sink == nil {
		return nil, errors.New("event sink is required")
	}
	if strings.TrimSpace(cfg.Origin) == "" {
		cfg.Origin = "http://localhost"
	}
	return &Client{cfg: cfg, sink: sink}, nil
}

type channel struct {
	collection string
	scopeKey   string
	conn       *websocket.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// OpenChannel dials the gateway, subscribes to one collection scope, and
// starts the read loop. The returned handle is owned by the registry.
func (c *Client) OpenChannel(collection, scopeKey string) (registry.Handle, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, apperrors.New(apperrors.CodeChannelNameRequired, "channel collection is required")
	}

	config, err := websocket.NewConfig(c.cfg.URL, c.cfg.Origin)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeChannelOpenFailed, "invalid websocket config", err)
	}
	config.Dialer = &net.Dialer{Timeout: timeouts.Dial}
	if c.cfg.Token != nil {
		if token := strings.TrimSpace(c.cfg.Token()); token != "" {
			config.Header.Set("Cookie", tokenCookieName+"="+token)
		}
	}

	conn, err := websocket.DialConfig(config)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeChannelOpenFailed, "dial sync gateway", err)
	}

	subscribe := Frame{
		Type: FrameTypeSubscribe,
		Payload: mustJSON(SubscribePayload{
			Collection: collection,
			ScopeKey:   scopeKey,
		}),
	}
	if err := json.NewEncoder(conn).Encode(subscribe); err != nil {
		_ = conn.Close()
		return nil, apperrors.Wrap(apperrors.CodeChannelOpenFailed, "send subscribe frame", err)
	}

	ch := &channel{
		collection: collection,
		scopeKey:   scopeKey,
		conn:       conn,
		done:       make(chan struct{}),
	}
	go c.readLoop(ch)
	return ch, nil
}

// Factory returns a registry factory that reopens the same channel, for use
// on reconnect passes.
func (c *Client) Factory(collection, scopeKey string) registry.Factory {
	return func() (registry.Handle, error) {
		return c.OpenChannel(collection, scopeKey)
	}
}

// CloseChannel tears down a handle previously returned by OpenChannel.
func (c *Client) CloseChannel(handle registry.Handle) error {
	ch, ok := handle.(*channel)
	if !ok {
		return fmt.Errorf("unexpected channel handle type %T", handle)
	}
	var err error
	ch.closeOnce.Do(func() {
		err = ch.conn.Close()
	})
	return err
}

func (c *Client) readLoop(ch *channel) {
	defer close(ch.done)

	decoder := json.NewDecoder(ch.conn)
	decodeErrors := 0
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			decodeErrors++
			log.Printf("sync: invalid frame on %s/%s: %v", ch.collection, ch.scopeKey, err)
			if decodeErrors >= maxDecodeErrorsPerConn {
				_ = c.CloseChannel(ch)
				return
			}
			continue
		}
		decodeErrors = 0

		switch frame.Type {
		case FrameTypeChange:
			event, err := change.DecodeBytes(frame.Payload)
			if err != nil {
				log.Printf("sync: drop undecodable change on %s/%s: %v", ch.collection, ch.scopeKey, err)
				continue
			}
			c.sink.HandleEvent(event)
		case FrameTypeSubscribed:
			// Ack only; nothing to dispatch.
		case FrameTypeError:
			var payload ErrorPayload
			if err := json.Unmarshal(frame.Payload, &payload); err != nil {
				log.Printf("sync: malformed error frame on %s/%s", ch.collection, ch.scopeKey)
				continue
			}
			log.Printf("sync: gateway error on %s/%s: %s %s", ch.collection, ch.scopeKey, payload.Code, payload.Message)
		default:
			log.Printf("sync: unsupported frame type %q on %s/%s", frame.Type, ch.collection, ch.scopeKey)
		}
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}

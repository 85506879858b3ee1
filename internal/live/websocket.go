package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/requestline/internal/domain/model"
)

const wsHandshakeTimeout = 10 * time.Second

// WebsocketSource dials a websocket feed of interaction events. Frames
// carry kind, handle, magnitude and timestamp; everything else about the
// upstream protocol is the adapter's business.
type WebsocketSource struct {
	baseURL string
	dialer  *websocket.Dialer
}

// NewWebsocketSource creates a source dialing baseURL (ws:// or wss://).
func NewWebsocketSource(baseURL string) *WebsocketSource {
	return &WebsocketSource{
		baseURL: baseURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: wsHandshakeTimeout,
		},
	}
}

// Connect implements Source.
func (s *WebsocketSource) Connect(ctx context.Context, host string) (Stream, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("host", host)
	u.RawQuery = q.Encode()

	conn, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	st := &wsStream{
		conn:   conn,
		events: make(chan model.InteractionEvent),
	}
	go st.readLoop()
	return st, nil
}

// frame is the wire shape of one interaction event.
type frame struct {
	EventID   string    `json:"event_id"`
	Kind      string    `json:"kind"`
	Handle    string    `json:"handle"`
	Magnitude int       `json:"magnitude"`
	Timestamp time.Time `json:"timestamp"`
}

type wsStream struct {
	conn   *websocket.Conn
	events chan model.InteractionEvent
}

func (s *wsStream) Events() <-chan model.InteractionEvent {
	return s.events
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}

// readLoop decodes frames until the link drops, then closes the event
// channel so the tracker sees an unplanned disconnect.
func (s *wsStream) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			// Undecodable frames surface downstream as malformed
			// events; the link itself stays up.
			s.events <- model.InteractionEvent{}
			continue
		}

		ev := model.InteractionEvent{
			EventID:   f.EventID,
			Kind:      model.EventKind(f.Kind),
			Handle:    f.Handle,
			Magnitude: f.Magnitude,
			TS:        f.Timestamp,
		}
		if ev.EventID == "" {
			ev.EventID = uuid.New().String()
		}
		s.events <- ev
	}
}

package ingest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"opsconsole/internal/config"

	"github.com/gorilla/websocket"
)

// StreamSubscriber consumes events from the upstream websocket push stream.
// The connection is redialed with exponential backoff after any failure, so a
// flapping upstream degrades to polling-level freshness instead of stopping ingest.
// Params: stream URL, bearer token, sink, and reconnect policy.
// Returns: websocket ingest lifecycle handle.
type StreamSubscriber struct {
	url          string
	token        string
	dialer       websocket.Dialer
	reconnectMin time.Duration
	reconnectMax time.Duration
	sink         EventSink
	logger       *slog.Logger
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewStreamSubscriber creates the stream client and starts the reconnect loop.
// Params: ingest websocket config, bearer token, sink, and optional logger.
// Returns: started subscriber.
func NewStreamSubscriber(cfg config.WebsocketIngestConfig, token string, sink EventSink, logger *slog.Logger) *StreamSubscriber {
	ctx, cancel := context.WithCancel(context.Background())
	subscriber := &StreamSubscriber{
		url:   cfg.URL,
		token: token,
		dialer: websocket.Dialer{
			HandshakeTimeout: time.Duration(cfg.HandshakeTimeoutSec) * time.Second,
		},
		reconnectMin: time.Duration(cfg.ReconnectMinMS) * time.Millisecond,
		reconnectMax: time.Duration(cfg.ReconnectMaxMS) * time.Millisecond,
		sink:         sink,
		logger:       logger,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go subscriber.run(ctx)
	return subscriber
}

// run dials, reads, and redials until the context is canceled.
// Params: loop context.
// Returns: none.
func (s *StreamSubscriber) run(ctx context.Context) {
	defer close(s.done)
	backoff := s.reconnectMin

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if s.logger != nil {
				s.logger.Warn("event stream dial failed", "url", s.url, "error", err.Error())
			}
			if !sleepContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.reconnectMax)
			continue
		}

		if s.logger != nil {
			s.logger.Info("event stream connected", "url", s.url)
		}
		backoff = s.reconnectMin

		connDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-connDone:
			}
		}()
		s.readLoop(conn)
		close(connDone)
		_ = conn.Close()
	}
}

// dial opens one authorized websocket connection.
// Params: dial context.
// Returns: live connection or dial error.
func (s *StreamSubscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// readLoop decodes stream frames and forwards them to the sink until read failure.
// Params: live connection.
// Returns: none.
func (s *StreamSubscriber) readLoop(conn *websocket.Conn) {
	scratch := acquireDecodeScratch()
	defer releaseDecodeScratch(scratch)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if s.logger != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("event stream read failed", "url", s.url, "error", err.Error())
			}
			return
		}

		events, decodeErr := decodeEventPayloadInto(frame, scratch)
		if decodeErr != nil {
			if s.logger != nil {
				s.logger.Warn("event stream decode failed", "url", s.url, "error", decodeErr.Error())
			}
			continue
		}
		if pushErr := pushEvents(s.sink, events); pushErr != nil {
			if s.logger != nil {
				s.logger.Error("event stream push failed", "url", s.url, "error", pushErr.Error())
			}
		}
	}
}

// Close stops the reconnect loop and waits for it to exit.
// Params: none.
// Returns: nil.
func (s *StreamSubscriber) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// nextBackoff doubles the delay up to the configured ceiling.
// Params: current delay and ceiling.
// Returns: next reconnect delay.
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

package linkedingo

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Payload keys that realtime listeners can subscribe to. Each DecoratedEvent
// frame is dispatched once per payload field that is present.
const (
	RealtimeEventMessage       = "event"
	RealtimeEventReactionAdded = "reactionAdded"
	RealtimeEventAction        = "action"
	RealtimeEventFromEntity    = "fromEntity"
)

const (
	wrapperClientConnection = "com.linkedin.realtimefrontend.ClientConnection"
	wrapperDecoratedEvent   = "com.linkedin.realtimefrontend.DecoratedEvent"
	heartbeatInterval       = 60 * time.Second
)

type (
	// EventListener receives decoded DecoratedEvent payloads for one key.
	EventListener func(ctx context.Context, evt *RealTimeEvent)
	// RawListener receives every frame before decoding.
	RawListener func(ctx context.Context, frame json.RawMessage)
	// TimeoutListener is fired on stream-level read timeouts, right before
	// the stream reconnects.
	TimeoutListener func(ctx context.Context, err error)
)

func (c *Client) AddEventListener(payloadKey string, fn EventListener) {
	c.listenersLock.Lock()
	defer c.listenersLock.Unlock()
	c.eventListeners[payloadKey] = append(c.eventListeners[payloadKey], fn)
}

func (c *Client) AddRawListener(fn RawListener) {
	c.listenersLock.Lock()
	defer c.listenersLock.Unlock()
	c.rawListeners = append(c.rawListeners, fn)
}

func (c *Client) AddTimeoutListener(fn TimeoutListener) {
	c.listenersLock.Lock()
	defer c.listenersLock.Unlock()
	c.timeoutListeners = append(c.timeoutListeners, fn)
}

// RealtimeSessionID returns the id assigned by the server in the
// ClientConnection frame of the current stream, or "" before it arrives.
func (c *Client) RealtimeSessionID() string {
	c.sessionLock.Lock()
	defer c.sessionLock.Unlock()
	return c.realtimeSessionID
}

func (c *Client) setRealtimeSessionID(id string) {
	c.sessionLock.Lock()
	c.realtimeSessionID = id
	c.sessionLock.Unlock()
}

// Listen connects to the realtime event stream and dispatches frames to the
// registered listeners until the context is cancelled or a non-timeout error
// occurs. Read timeouts fire TIMEOUT listeners and reconnect in place. A
// heartbeat sibling runs for the lifetime of each stream attempt.
func (c *Client) Listen(ctx context.Context, userURN URN) error {
	log := c.Log.With().Str("component", "linkedin_realtime").Logger()
	ctx = log.WithContext(ctx)
	for {
		hbCtx, cancelHeartbeat := context.WithCancel(ctx)
		go c.heartbeatLoop(hbCtx, userURN)
		err := c.readEventStream(ctx)
		cancelHeartbeat()
		if ctx.Err() != nil {
			return ctx.Err()
		} else if err == nil {
			// Server closed the stream cleanly; reconnect.
			log.Debug().Msg("Event stream closed, reconnecting")
			continue
		} else if isTimeoutError(err) {
			log.Warn().Err(err).Msg("Event stream timed out, reconnecting")
			c.listenersLock.RLock()
			listeners := c.timeoutListeners
			c.listenersLock.RUnlock()
			for _, listener := range listeners {
				listener(ctx, err)
			}
			continue
		}
		return err
	}
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) readEventStream(ctx context.Context) error {
	log := zerolog.Ctx(ctx)

	// The stream client deliberately has no overall timeout: the connection
	// is expected to live for hours.
	streamClient := &http.Client{Transport: c.http.Transport}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, realtimeConnectURL+"?rc=1", nil)
	if err != nil {
		return err
	}
	req.Header = c.buildHeaders(map[string]string{
		"accept":                "text/event-stream",
		"x-li-realtime-session": uuid.NewString(),
	})

	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrTooManyRequests
	} else if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to connect to event stream: HTTP %d", resp.StatusCode)
	}
	c.cookies.UpdateFromResponse(resp)
	log.Info().Msg("Connected to event stream")

	reader := bufio.NewReaderSize(resp.Body, 1024*1024)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		c.handleStreamFrame(ctx, json.RawMessage(strings.TrimSpace(strings.TrimPrefix(line, "data:"))))
	}
}

func (c *Client) handleStreamFrame(ctx context.Context, frame json.RawMessage) {
	log := zerolog.Ctx(ctx)

	c.listenersLock.RLock()
	rawListeners := c.rawListeners
	c.listenersLock.RUnlock()
	for _, listener := range rawListeners {
		listener(ctx, frame)
	}

	var envelope struct {
		ClientConnection *struct {
			ID string `json:"id"`
		} `json:"com.linkedin.realtimefrontend.ClientConnection"`
		DecoratedEvent *struct {
			Topic   string          `json:"topic"`
			Payload json.RawMessage `json:"payload"`
		} `json:"com.linkedin.realtimefrontend.DecoratedEvent"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		log.Warn().Err(err).Msg("Failed to parse event stream frame")
		return
	}

	if cc := envelope.ClientConnection; cc != nil {
		log.Info().Str("session_id", cc.ID).Msg("Received realtime connection ID")
		c.setRealtimeSessionID(cc.ID)
	}
	if de := envelope.DecoratedEvent; de != nil && len(de.Payload) > 0 {
		c.dispatchPayload(ctx, de.Payload)
	}
}

func (c *Client) dispatchPayload(ctx context.Context, payload json.RawMessage) {
	log := zerolog.Ctx(ctx)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		log.Warn().Err(err).Msg("Failed to parse decorated event payload")
		return
	}

	var evt *RealTimeEvent
	c.listenersLock.RLock()
	defer c.listenersLock.RUnlock()
	for key, listeners := range c.eventListeners {
		if raw, ok := fields[key]; !ok || string(raw) == "null" {
			continue
		}
		if evt == nil {
			evt = &RealTimeEvent{}
			if err := json.Unmarshal(payload, evt); err != nil {
				log.Warn().Err(err).Msg("Failed to decode realtime event")
				return
			}
		}
		for _, listener := range listeners {
			listener(ctx, evt)
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context, userURN URN) {
	log := zerolog.Ctx(ctx)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		sessionID := c.RealtimeSessionID()
		if sessionID == "" {
			log.Warn().Msg("No realtime session ID yet, skipping heartbeat")
			continue
		}
		_, _, err := c.rawRequest(ctx, http.MethodPost, connectivityTrackingURL, &reqOptions{
			query: url.Values{"action": {"sendHeartbeat"}},
			jsonBody: map[string]any{
				"isFirstHeartbeat":  false,
				"isLastHeartbeat":   false,
				"realtimeSessionId": sessionID,
				"mpName":            "voyager-web",
				"mpVersion":         "1.13.8094",
				"clientId":          "voyager-web",
				"actorUrn":          userURN.String(),
				"contextUrns":       []string{userURN.String()},
			},
		})
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("Failed to send heartbeat")
		}
	}
}

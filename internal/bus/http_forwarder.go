package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pulsefm/pulsefm/internal/events"
	"github.com/pulsefm/pulsefm/internal/log"
)

const forwardTimeout = 5 * time.Second

// envelope is the wire format POSTed to a stream service's
// /events/{topic} endpoint: a kind discriminator plus the raw payload, so
// the receiver can decode into the matching concrete event-variant struct
// (spec.md §9 "tagged variants" in place of a dynamic dict).
type envelope struct {
	Kind    events.Kind     `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// kinded is implemented by every concrete event in internal/events.
type kinded interface {
	Kind() events.Kind
}

// HTTPForwarder wraps a local Bus and additionally POSTs every published
// message to one or more remote stream services, so a StreamHub running in
// a separate process observes RotationEngine/PollEngine events (spec.md §6
// "EventBus payloads", §5 "multiple independent processes").
type HTTPForwarder struct {
	inner   Bus
	targets []string
	client  *http.Client
}

// NewHTTPForwarder wraps inner, forwarding every Publish to targets (each a
// stream-service base URL) in addition to delivering it locally.
func NewHTTPForwarder(inner Bus, targets []string) *HTTPForwarder {
	return &HTTPForwarder{inner: inner, targets: targets, client: &http.Client{Timeout: forwardTimeout}}
}

func (f *HTTPForwarder) Publish(ctx context.Context, topic string, msg Message) error {
	if err := f.inner.Publish(ctx, topic, msg); err != nil {
		return err
	}
	if len(f.targets) == 0 {
		return nil
	}

	k, ok := msg.(kinded)
	if !ok {
		return nil // not a tagged event variant; nothing to forward
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope{Kind: k.Kind(), Payload: payload})
	if err != nil {
		return err
	}

	logger := log.WithComponent("bus")
	for _, target := range f.targets {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target+"/events/"+topic, bytes.NewReader(body))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := f.client.Do(req)
		if err != nil {
			logger.Warn().Err(err).Str("event", "bus.forward_failed").Str("target", target).Str("topic", topic).Msg("failed to forward event to stream service")
			continue
		}
		_ = resp.Body.Close()
	}
	return nil
}

func (f *HTTPForwarder) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	return f.inner.Subscribe(ctx, topic)
}

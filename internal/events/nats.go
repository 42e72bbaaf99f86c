// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"go.astrophena.name/feedsync/internal/logger"
)

// DefaultSubjectPrefix is the first token of forwarded NATS subjects.
const DefaultSubjectPrefix = "feedsync"

// Subject returns the NATS subject an event is forwarded to:
// "<prefix>.<feed>.<kind>".
func Subject(prefix string, e Event) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + subjectToken(e.FeedKey) + "." + subjectToken(string(e.Kind))
}

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return tokenReplacer.Replace(s)
}

// NATSBridge publishes bus events to NATS as JSON.
type NATSBridge struct {
	Conn *nats.Conn
	// Prefix is the first subject token. If empty, DefaultSubjectPrefix is used.
	Prefix string
	// Logger receives publish failures. If nil, nothing is logged.
	Logger *slog.Logger
}

// Forward publishes every event from bus until ctx is canceled. It returns
// once the subscription is set up; publishing happens in a goroutine. Events
// already buffered when ctx is canceled are still published. The returned
// channel is closed once forwarding stops.
func (br *NATSBridge) Forward(ctx context.Context, bus *Bus) <-chan struct{} {
	log := logger.Or(br.Logger)
	evs, unsubscribe := bus.Subscribe()
	done := make(chan struct{})

	publish := func(ctx context.Context, e Event) {
		if err := br.Publish(ctx, e); err != nil {
			log.Warn("forwarding event to NATS", "subject", Subject(br.Prefix, e), "error", err)
		}
	}

	go func() {
		defer close(done)
		defer unsubscribe()
		for {
			select {
			case e := <-evs:
				publish(ctx, e)
			case <-ctx.Done():
				drainCtx := context.WithoutCancel(ctx)
				for {
					select {
					case e := <-evs:
						publish(drainCtx, e)
					default:
						return
					}
				}
			}
		}
	}()
	return done
}

// Publish sends a single event, carrying the trace context of ctx in the
// message headers.
func (br *NATSBridge) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: Subject(br.Prefix, e),
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))
	return br.Conn.PublishMsg(msg)
}

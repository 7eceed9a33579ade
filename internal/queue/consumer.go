package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StartTripEventConsumer connects to RabbitMQ, declares the trip.events
// queue (durable) and appends every message to logPath as one line. It
// reconnects with backoff until ctx is cancelled. A message that cannot
// be handled is rejected without requeue so the loop keeps moving.
func StartTripEventConsumer(ctx context.Context, url, logPath string) error {
	if url == "" {
		url = DefaultURL
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(logPath), err)
	}

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("trip-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, logPath)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("trip-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, logPath string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("trip-consumer: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(TripEventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(TripEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(f, d.Body); err != nil {
				log.Printf("trip-consumer: handle message %s failed: %v", d.MessageId, err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(w io.Writer, body []byte) error {
	var msg EventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if msg.Type == "" {
		return errors.New("message without type")
	}
	if _, err := io.WriteString(w, formatLine(msg)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// formatLine renders one event as a single human-friendly line with the
// data keys in sorted order.
func formatLine(msg EventMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | entity_id=%d | event_id=%s",
		msg.OccurredAt.UTC().Format(time.RFC3339), msg.Type, msg.EntityID, msg.ID)
	keys := make([]string, 0, len(msg.Data))
	for k := range msg.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := msg.Data[k]
		if s, ok := v.(string); ok {
			fmt.Fprintf(&b, " | %s=%q", k, s)
			continue
		}
		fmt.Fprintf(&b, " | %s=%v", k, v)
	}
	b.WriteByte('\n')
	return b.String()
}

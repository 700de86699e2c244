// Package memory provides an in-process broker for local development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

const defaultBuffer = 1024

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
	Data    []byte
}

// Broker is a topic-per-channel queue implementing jobs.Publisher and
// jobs.Subscriber. A handler error requeues the delivery.
type Broker struct {
	mu       sync.Mutex
	buffer   int
	topics   map[string]chan []byte
	bindings map[string]string
	failures map[string]error
	sinks    map[string]bool
	messages []PublishedMessage

	// RedeliveryDelay postpones the requeue of a nacked message.
	RedeliveryDelay time.Duration
}

// NewBroker constructs a broker whose topics hold up to buffer undelivered messages.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broker{
		buffer:          buffer,
		topics:          make(map[string]chan []byte),
		bindings:        make(map[string]string),
		failures:        make(map[string]error),
		sinks:           make(map[string]bool),
		RedeliveryDelay: 100 * time.Millisecond,
	}
}

// Bind attaches subscription to topic. Unbound subscriptions read the topic of the same name.
func (b *Broker) Bind(subscription, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindings[subscription] = topic
}

// Sink records publishes to the topics without queueing them, for topics
// consumed outside the process.
func (b *Broker) Sink(topics ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		if t != "" {
			b.sinks[t] = true
		}
	}
}

// FailPublish makes every publish to topic return err. A nil err clears it.
func (b *Broker) FailPublish(topic string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, topic)
		return
	}
	b.failures[topic] = err
}

func (b *Broker) channel(topic string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.topics[topic]
	if !ok {
		ch = make(chan []byte, b.buffer)
		b.topics[topic] = ch
	}
	return ch
}

// Publish marshals payload to JSON and enqueues it on topic.
func (b *Broker) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	b.mu.Lock()
	if failErr, ok := b.failures[topic]; ok {
		b.mu.Unlock()
		return "", fmt.Errorf("publish to %s: %w", topic, failErr)
	}
	sink := b.sinks[topic]
	b.mu.Unlock()

	if !sink {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("publish canceled: %w", ctx.Err())
		case b.channel(topic) <- data:
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, PublishedMessage{Topic: topic, Payload: payload, Data: data})
	return fmt.Sprintf("memory-%d", len(b.messages)), nil
}

// Receive delivers messages one at a time until ctx ends, then returns nil.
func (b *Broker) Receive(ctx context.Context, subscription string, fn jobs.ReceiveFunc) error {
	b.mu.Lock()
	topic, ok := b.bindings[subscription]
	b.mu.Unlock()
	if !ok {
		topic = subscription
	}
	ch := b.channel(topic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-ch:
			if err := fn(ctx, data); err != nil {
				b.requeue(ch, data)
			}
		}
	}
}

func (b *Broker) requeue(ch chan []byte, data []byte) {
	if b.RedeliveryDelay <= 0 {
		go func() { ch <- data }()
		return
	}
	time.AfterFunc(b.RedeliveryDelay, func() { ch <- data })
}

// Messages returns the recorded publishes.
func (b *Broker) Messages() []PublishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PublishedMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

// Topic returns the recorded publishes to topic.
func (b *Broker) Topic(topic string) []PublishedMessage {
	var out []PublishedMessage
	for _, m := range b.Messages() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Pending reports undelivered messages on topic.
func (b *Broker) Pending(topic string) int {
	return len(b.channel(topic))
}

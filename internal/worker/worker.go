// Package worker implements the queue-driven stage loop shared by the
// extractor, explainer, summarizer and deletion workers: receive one message,
// hand it to a stage Handler, publish the forwards and settle the delivery.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/logging"
	"github.com/JakeFAU/crawl-pipeline/internal/metrics"
	"github.com/JakeFAU/crawl-pipeline/internal/telemetry"
)

const defaultReceiveBackoff = 5 * time.Second

// Outbound is a message a handler asks the harness to forward.
type Outbound struct {
	Topic   string
	Payload any
}

// Handler processes one message body. Returning an error wrapping
// jobs.ErrMalformedMessage drops the message; any other error redelivers it.
type Handler interface {
	Name() string
	Handle(ctx context.Context, body []byte) ([]Outbound, error)
}

// Config controls Worker behavior.
type Config struct {
	Subscription   string
	ReceiveBackoff time.Duration
}

// Worker consumes one subscription sequentially.
type Worker struct {
	subscriber jobs.Subscriber
	publisher  jobs.Publisher
	handler    Handler
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	subscriber jobs.Subscriber,
	publisher jobs.Publisher,
	handler Handler,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.ReceiveBackoff <= 0 {
		cfg.ReceiveBackoff = defaultReceiveBackoff
	}
	logger = logging.OrNop(logger)
	return &Worker{
		subscriber: subscriber,
		publisher:  publisher,
		handler:    handler,
		cfg:        cfg,
		logger: logger.With(
			zap.String("stage", handler.Name()),
			zap.String("subscription", cfg.Subscription),
		),
	}
}

// Run blocks, consuming messages until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		err := w.subscriber.Receive(ctx, w.cfg.Subscription, w.process)
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return
		}
		if err != nil {
			w.logger.Error("receive failed", zap.Error(err), zap.Duration("backoff", w.cfg.ReceiveBackoff))
		} else {
			w.logger.Warn("receive returned unexpectedly", zap.Duration("backoff", w.cfg.ReceiveBackoff))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return
		case <-time.After(w.cfg.ReceiveBackoff):
		}
	}
}

// process returns nil to ack and an error to nack.
func (w *Worker) process(ctx context.Context, body []byte) error {
	start := time.Now()
	stage := w.handler.Name()
	ctx, span := telemetry.Tracer().Start(ctx, "stage."+stage,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("subscription", w.cfg.Subscription),
		))
	defer span.End()

	forwards, err := w.handle(ctx, body)
	switch {
	case errors.Is(err, jobs.ErrMalformedMessage):
		w.logger.Warn("dropping malformed message", zap.Error(err), zap.ByteString("body", truncate(body)))
		metrics.ObserveStageMessage(stage, metrics.OutcomeDropped, time.Since(start))
		span.SetAttributes(attribute.String("outcome", metrics.OutcomeDropped))
		return nil
	case err != nil:
		w.logger.Error("handler failed; message will be redelivered", zap.Error(err))
		metrics.ObserveStageMessage(stage, metrics.OutcomeFailed, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		return err
	}

	for _, out := range forwards {
		id, err := w.publisher.Publish(ctx, out.Topic, out.Payload)
		if err != nil {
			w.logger.Error("forward failed; message will be redelivered", zap.String("topic", out.Topic), zap.Error(err))
			metrics.ObserveStageMessage(stage, metrics.OutcomeFailed, time.Since(start))
			span.RecordError(err)
			span.SetStatus(codes.Error, "forward failed")
			return fmt.Errorf("forward to %s: %w", out.Topic, err)
		}
		w.logger.Debug("forwarded message", zap.String("topic", out.Topic), zap.String("message_id", id))
	}
	metrics.ObserveStageMessage(stage, metrics.OutcomeAcked, time.Since(start))
	span.SetAttributes(attribute.String("outcome", metrics.OutcomeAcked), attribute.Int("forwards", len(forwards)))
	return nil
}

// ErrHandlerPanic marks a delivery whose handler panicked. The message is redelivered.
var ErrHandlerPanic = errors.New("handler panicked")

func (w *Worker) handle(ctx context.Context, body []byte) (forwards []Outbound, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("handler panic recovered",
				zap.Any("panic", rec),
				zap.Stack("stack"),
				zap.ByteString("body", truncate(body)),
			)
			forwards = nil
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()
	return w.handler.Handle(ctx, body)
}

const maxLoggedBody = 512

func truncate(body []byte) []byte {
	if len(body) <= maxLoggedBody {
		return body
	}
	return body[:maxLoggedBody]
}

// RunAll starts every worker and blocks until the context finishes and all have returned.
func RunAll(ctx context.Context, workers ...*Worker) {
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(wk *Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

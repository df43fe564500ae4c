package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/resilience"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/logging"
)

// FilingEvent is the message published when a filing awaits indexing.
type FilingEvent struct {
	FilingID    string    `json:"filing_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *zap.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *zap.Logger
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "nats"), zap.String("subject", subject))

	conn, err := nats.Connect(
		url,
		nats.Name("financial-compliance-auditor"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishFilingSubmitted(ctx context.Context, filingID string) error {
	data, err := json.Marshal(FilingEvent{FilingID: filingID, SubmittedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal filing event: %w", err)
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (q *Queue) SubscribeFilingSubmitted(ctx context.Context, handler func(context.Context, FilingEvent) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, "indexers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		event, err := decodeFilingEvent(msg.Data)
		if err != nil {
			q.logger.Warn("drop malformed filing event", zap.Error(err))
			return
		}

		logger := q.logger.With(zap.String("filing_id", event.FilingID))
		handlerCtx, cancel := context.WithCancel(logging.WithLogger(ctx, logger))
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			logger.Error("index handler failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// decodeFilingEvent accepts the JSON event and a bare filing ID. A bare ID
// has no submission time.
func decodeFilingEvent(data []byte) (FilingEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return FilingEvent{}, errors.New("empty filing event")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return FilingEvent{FilingID: trimmed}, nil
	}
	var ev FilingEvent
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		return FilingEvent{}, fmt.Errorf("decode filing event: %w", err)
	}
	if strings.TrimSpace(ev.FilingID) == "" {
		return FilingEvent{}, errors.New("filing event without filing_id")
	}
	return ev, nil
}

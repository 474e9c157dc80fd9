package companion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bikeweather/internal/config"
	"bikeweather/internal/domain"

	"github.com/nats-io/nats.go"
)

const timelineStreamMaxAge = 24 * time.Hour

// NATSPublisher publishes compressed timeline payloads into JetStream stream.
// Params: NATS connection and publish subject settings.
// Returns: companion publisher implementation.
type NATSPublisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// NewNATSPublisher creates JetStream publisher for companion timeline.
// Params: companion config.
// Returns: initialized publisher or setup error.
func NewNATSPublisher(cfg config.CompanionConfig) (*NATSPublisher, error) {
	nc, js, err := openTimelineJetStream(cfg)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, js: js, subject: cfg.Subject}, nil
}

// Publish sends one payload; Nats-Msg-Id deduplicates republished payloads.
// Params: context and validated payload.
// Returns: encode/publish error.
func (p *NATSPublisher) Publish(ctx context.Context, payload domain.TimelinePayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	body, err := EncodePayload(payload)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = body
	msg.Header.Set("Nats-Msg-Id", strings.TrimSpace(payload.ID))
	msg.Header.Set("Content-Encoding", EncodingZstd)
	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish timeline payload: %w", err)
	}
	return nil
}

// Close closes publisher NATS connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	p.nc.Close()
	return nil
}

// NATSReceiver consumes timeline payloads via queue group consumer.
// Params: NATS connection, queue subscription, and target timeline.
// Returns: receiver lifecycle handle.
type NATSReceiver struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	logger *slog.Logger
}

// NewNATSReceiver starts queue consumer applying payloads to timeline.
// Params: companion config, target timeline, and optional logger.
// Returns: running receiver or setup error.
func NewNATSReceiver(cfg config.CompanionConfig, timeline *Timeline, logger *slog.Logger) (*NATSReceiver, error) {
	nc, js, err := openTimelineJetStream(cfg)
	if err != nil {
		return nil, err
	}

	receiver := &NATSReceiver{nc: nc, logger: logger}
	subOpts := []nats.SubOpt{
		nats.BindStream(cfg.Stream),
		nats.Durable(cfg.ConsumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(time.Duration(cfg.AckWaitSec) * time.Second),
		nats.DeliverAll(),
	}
	sub, err := js.QueueSubscribe(cfg.Subject, cfg.DeliverGroup, func(message *nats.Msg) {
		payload, decodeErr := DecodePayload(message.Data, message.Header.Get("Content-Encoding"))
		if decodeErr != nil {
			if logger != nil {
				logger.Warn("companion decode failed", "subject", message.Subject, "error", decodeErr.Error())
			}
			receiver.ackMessage(message, "decode")
			return
		}
		if !timeline.Apply(payload) {
			if logger != nil {
				logger.Debug("companion payload outdated", "payload_id", payload.ID, "time", payload.Time)
			}
			receiver.ackMessage(message, "outdated")
			return
		}
		if logger != nil {
			logger.Info("companion timeline updated", "payload_id", payload.ID, "entries", len(payload.Data))
		}
		receiver.ackMessage(message, "applied")
	}, subOpts...)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("queue subscribe %q/%q: %w", cfg.Subject, cfg.DeliverGroup, err)
	}
	receiver.sub = sub
	return receiver, nil
}

// ackMessage acknowledges handled message and logs ack failures.
func (r *NATSReceiver) ackMessage(message *nats.Msg, reason string) {
	if message == nil {
		return
	}
	if err := message.Ack(); err != nil && r.logger != nil {
		r.logger.Warn("companion ack failed", "subject", message.Subject, "reason", reason, "error", err.Error())
	}
}

// Close drains subscription and closes NATS connection.
// Params: none.
// Returns: close error from subscription drain.
func (r *NATSReceiver) Close() error {
	if r == nil || r.nc == nil {
		return nil
	}
	if r.sub != nil {
		if err := r.sub.Drain(); err != nil {
			r.nc.Close()
			return err
		}
	}
	r.nc.Close()
	return nil
}

// ensureStream ensures timeline stream exists.
// Params: JetStream context, stream name, and subject.
// Returns: stream create/lookup error.
func ensureStream(js nats.JetStreamContext, streamName, subject string) error {
	if _, err := js.StreamInfo(streamName); err == nil {
		return nil
	} else if err != nats.ErrStreamNotFound && !strings.Contains(strings.ToLower(err.Error()), "stream not found") {
		return fmt.Errorf("stream info %q: %w", streamName, err)
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:       streamName,
		Subjects:   []string{subject},
		Retention:  nats.LimitsPolicy,
		Storage:    nats.FileStorage,
		MaxAge:     timelineStreamMaxAge,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", streamName, err)
	}
	return nil
}

// openTimelineJetStream opens connection/JetStream and ensures timeline stream exists.
// Params: companion config with URL and stream/subject names.
// Returns: opened NATS connection, JetStream context, and setup error.
func openTimelineJetStream(cfg config.CompanionConfig) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(strings.Join(cfg.URL, ","))
	if err != nil {
		return nil, nil, fmt.Errorf("connect companion nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream init for companion: %w", err)
	}
	if err := ensureStream(js, cfg.Stream, cfg.Subject); err != nil {
		nc.Close()
		return nil, nil, err
	}
	return nc, js, nil
}

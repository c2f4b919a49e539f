package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/dashlink/internal/config"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
	"git.home.luguber.info/inful/dashlink/internal/logfields"
)

// Batch is the JSON message published per dispatch.
type Batch struct {
	Action Action    `json:"action"`
	Paths  []string  `json:"paths"`
	At     time.Time `json:"at"`
}

// Publisher is the subset of jetstream.JetStream used to publish batches.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSConsumer publishes batches to <prefix>.update and <prefix>.delete.
type NATSConsumer struct {
	conn   *nats.Conn
	pub    Publisher
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewNATSConsumer publishes through pub. It does not own a connection.
func NewNATSConsumer(pub Publisher, subjectPrefix string, logger *slog.Logger) *NATSConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSConsumer{pub: pub, prefix: subjectPrefix, logger: logger, now: time.Now}
}

// DialNATS connects, ensures the stream covering <prefix>.> exists, and returns a consumer
// that owns the connection.
func DialNATS(ctx context.Context, cfg config.NATSConsumerConfig, logger *slog.Logger) (*NATSConsumer, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("dashlink"))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "connect to NATS").
			WithContext("url", cfg.URL).
			Build()
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "create JetStream context").Build()
	}

	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "dashlink change batches",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		MaxAge:      24 * time.Hour,
	})
	if err != nil {
		conn.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "ensure JetStream stream").
			WithContext("stream", cfg.Stream).
			Build()
	}

	c := NewNATSConsumer(js, cfg.SubjectPrefix, logger)
	c.conn = conn
	c.logger.Info("NATS consumer ready", logfields.Addr(cfg.URL), logfields.Subject(cfg.SubjectPrefix+".>"))
	return c, nil
}

func (c *NATSConsumer) ApplyUpdates(ctx context.Context, paths []string) error {
	return c.publish(ctx, ActionUpdate, paths)
}

func (c *NATSConsumer) ApplyDeletes(ctx context.Context, paths []string) error {
	return c.publish(ctx, ActionDelete, paths)
}

// Subject returns the subject used for action.
func (c *NATSConsumer) Subject(action Action) string {
	return c.prefix + "." + string(action)
}

func (c *NATSConsumer) publish(ctx context.Context, action Action, paths []string) error {
	data, err := json.Marshal(Batch{Action: action, Paths: paths, At: c.now().UTC()})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "marshal batch").Build()
	}
	subject := c.Subject(action)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := c.pub.Publish(pctx, subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConsumer, "publish batch").
			Retryable().
			WithContext("subject", subject).
			Build()
	}
	c.logger.Debug("Published batch", logfields.Subject(subject), logfields.Count(len(paths)))
	return nil
}

// Close drains the owned connection, if any.
func (c *NATSConsumer) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "drain NATS connection").Build()
	}
	return nil
}

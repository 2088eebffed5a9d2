package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ultracontext/internal/compress"
	"github.com/fyrsmithlabs/ultracontext/internal/logging"
)

// SubjectCompressDone carries engine completion events.
const SubjectCompressDone = "uc.compress.done"

// SubjectAll matches every event the daemon publishes.
const SubjectAll = "uc.>"

const (
	defaultPort         = 4222
	defaultReadyTimeout = 5 * time.Second
)

// Config controls the event bus.
type Config struct {
	// Embedded starts an in-process server and connects to it. When
	// false, URL names the external server to use.
	Embedded bool

	// Host and Port bind the embedded listener. Port 0 selects 4222; a
	// negative port picks a random free one.
	Host string
	Port int

	// URL of the external server when Embedded is false. Empty selects
	// the NATS default.
	URL string
}

func (c Config) host() string {
	if c.Host == "" {
		return "127.0.0.1"
	}
	return c.Host
}

func (c Config) port() int {
	if c.Port == 0 {
		return defaultPort
	}
	return c.Port
}

func (c Config) url() string {
	if c.URL == "" {
		return nats.DefaultURL
	}
	return c.URL
}

// Bus is a thin NATS wrapper. Producers publish JSON events; the monitor
// subscribes. A single connection serves both directions.
type Bus struct {
	cfg    Config
	server *natsserver.Server
	conn   *nats.Conn
	logger *logging.Logger
}

// Satisfied by publishing completion events on SubjectCompressDone.
var _ compress.EventSink = (*Bus)(nil)

// New starts the embedded server when configured and connects to it.
func New(cfg Config, logger *logging.Logger) (*Bus, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	b := &Bus{cfg: cfg, logger: logger}
	url := cfg.url()
	if cfg.Embedded {
		srv, err := natsserver.NewServer(&natsserver.Options{
			Host:   cfg.host(),
			Port:   cfg.port(),
			NoLog:  true,
			NoSigs: true,
		})
		if err != nil {
			return nil, fmt.Errorf("creating embedded bus server: %w", err)
		}
		go srv.Start()
		if !srv.ReadyForConnections(defaultReadyTimeout) {
			srv.Shutdown()
			return nil, errors.New("embedded bus server not ready")
		}
		b.server = srv
		url = srv.ClientURL()
	}

	conn, err := nats.Connect(url,
		nats.Name("ultracontext"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		if b.server != nil {
			b.server.Shutdown()
		}
		return nil, fmt.Errorf("connecting to bus at %s: %w", url, err)
	}
	b.conn = conn

	logger.Info("bus ready",
		zap.String("url", url),
		zap.Bool("embedded", cfg.Embedded))
	return b, nil
}

// ClientURL returns the address clients should connect to. For an
// embedded server this reflects the actual bound port.
func (b *Bus) ClientURL() string {
	if b.server != nil {
		return b.server.ClientURL()
	}
	return b.cfg.url()
}

// Publish marshals v to JSON and publishes it on subject.
func (b *Bus) Publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// CompressionDone implements the engine's event sink. Publish failures
// are logged rather than surfaced so a broken bus never fails a
// compression.
func (b *Bus) CompressionDone(ctx context.Context, ev compress.Event) {
	if err := b.Publish(SubjectCompressDone, ev); err != nil {
		b.logger.WarnContext(ctx, "publishing compression event failed", zap.Error(err))
	}
}

// Subscription delivers raw bus messages on C until unsubscribed.
type Subscription struct {
	C   <-chan *nats.Msg
	sub *nats.Subscription
}

// Unsubscribe stops delivery. Messages already queued on C stay readable.
func (s *Subscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

// Subscribe delivers messages matching subject, which may use NATS
// wildcards such as SubjectAll.
func (b *Bus) Subscribe(subject string) (*Subscription, error) {
	ch := make(chan *nats.Msg, 64)
	sub, err := b.conn.ChanSubscribe(subject, ch)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return &Subscription{C: ch, sub: sub}, nil
}

// Close closes the connection and stops the embedded server.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
	if b.server != nil {
		b.server.Shutdown()
		b.server.WaitForShutdown()
	}
}

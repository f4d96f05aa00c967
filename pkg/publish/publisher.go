package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/wlanboot/pkg/retry"
	"github.com/haasonsaas/wlanboot/pkg/supervisor"
	"github.com/rs/zerolog"
)

// Status is the payload published on every interval.
type Status struct {
	ClientID string    `json:"client_id"`
	Time     time.Time `json:"time"`
	Device   any       `json:"device,omitempty"`
}

// Publisher is a supervisor.Task that publishes status while the device is
// ready.
type Publisher struct {
	store    SecretGetter
	tls      TLSPaths
	factory  ClientFactory
	interval time.Duration
	topic    string
	status   func(ctx context.Context) any
	backoff  *retry.Backoff
	logger   zerolog.Logger
}

type Config struct {
	TLS      TLSPaths
	Interval time.Duration
	// Topic may contain %s, replaced by the client id.
	Topic string
}

func NewPublisher(store SecretGetter, cfg Config, factory ClientFactory, status func(ctx context.Context) any, logger zerolog.Logger) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Topic == "" {
		cfg.Topic = "wlanboot/%s/status"
	}
	logger = logger.With().Str("task", "publish").Logger()
	return &Publisher{
		store:    store,
		tls:      cfg.TLS,
		factory:  factory,
		interval: cfg.Interval,
		topic:    cfg.Topic,
		status:   status,
		backoff:  retry.NewBackoff(time.Second, 30*time.Second, 5, logger),
		logger:   logger,
	}
}

// Run waits for readiness, connects and publishes until ctx is done. A
// ConfigurationError is returned as soon as the device is ready.
func (p *Publisher) Run(ctx context.Context, ready *supervisor.Event) error {
	for {
		if err := ready.Wait(ctx); err != nil {
			return nil
		}

		id, err := ResolveIdentity(p.store)
		if err != nil {
			return err
		}
		tlsCfg, err := LoadTLS(p.tls)
		if err != nil {
			return err
		}

		client := p.factory(id, tlsCfg)
		err = p.backoff.Do(ctx, func() error { return client.Connect(ctx) }, func(error) bool {
			return ready.IsSet()
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn().Err(err).Str("endpoint", id.Endpoint).Msg("Broker connection failed")
			if !p.sleep(ctx) {
				return nil
			}
			continue
		}

		p.logger.Info().Str("endpoint", id.Endpoint).Str("client_id", id.ClientID).Msg("Connected to broker")
		err = p.publishWhileReady(ctx, client, id, ready)
		client.Disconnect()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn().Err(err).Msg("Publishing stopped")
			if !p.sleep(ctx) {
				return nil
			}
		}
	}
}

func (p *Publisher) publishWhileReady(ctx context.Context, client Client, id Identity, ready *supervisor.Event) error {
	topic := p.topic
	if strings.Contains(topic, "%s") {
		topic = fmt.Sprintf(topic, id.ClientID)
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if !ready.IsSet() {
			return nil
		}
		payload, err := json.Marshal(Status{ClientID: id.ClientID, Time: time.Now().UTC(), Device: p.deviceStatus(ctx)})
		if err != nil {
			return fmt.Errorf("encode status: %w", err)
		}
		if err := client.Publish(ctx, topic, payload); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		p.logger.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("Status published")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Publisher) deviceStatus(ctx context.Context) any {
	if p.status == nil {
		return nil
	}
	return p.status(ctx)
}

func (p *Publisher) sleep(ctx context.Context) bool {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

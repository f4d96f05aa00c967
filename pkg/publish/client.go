package publish

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client is the broker connection used by the Publisher.
type Client interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Disconnect()
}

// ClientFactory builds a Client for an identity.
type ClientFactory func(id Identity, tlsCfg *tls.Config) Client

// BrokerPort is the MQTT over TLS port.
const BrokerPort = 8883

type pahoClient struct {
	client mqtt.Client
}

// NewPahoClient returns a Client backed by the Eclipse Paho library,
// connecting to ssl://<endpoint>:8883.
func NewPahoClient(keepAlive time.Duration) ClientFactory {
	return func(id Identity, tlsCfg *tls.Config) Client {
		opts := mqtt.NewClientOptions().
			AddBroker(fmt.Sprintf("ssl://%s:%d", id.Endpoint, BrokerPort)).
			SetClientID(id.ClientID).
			SetTLSConfig(tlsCfg).
			SetKeepAlive(keepAlive).
			SetAutoReconnect(false).
			SetCleanSession(true)
		return &pahoClient{client: mqtt.NewClient(opts)}
	}
}

func (c *pahoClient) Connect(ctx context.Context) error {
	return wait(ctx, c.client.Connect())
}

func (c *pahoClient) Publish(ctx context.Context, topic string, payload []byte) error {
	return wait(ctx, c.client.Publish(topic, 1, false, payload))
}

func (c *pahoClient) Disconnect() {
	c.client.Disconnect(250)
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

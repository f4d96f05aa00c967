package publish

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/wlanboot/pkg/retry"
	"github.com/haasonsaas/wlanboot/pkg/secrets"
	"github.com/haasonsaas/wlanboot/pkg/supervisor"
	"github.com/haasonsaas/wlanboot/pkg/wlan/wlantest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu         sync.Mutex
	connectErr error
	connects   int
	messages   []published
	disconnect int
}

func (c *fakeClient) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return c.connectErr
}

func (c *fakeClient) Publish(_ context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, payload: payload})
	return nil
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnect++
}

func (c *fakeClient) Messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

// writeTLS writes a self-signed certificate usable as client cert and root.
func writeTLS(t *testing.T) TLSPaths {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "device"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	paths := TLSPaths{
		Key:    filepath.Join(dir, "private.pem"),
		Cert:   filepath.Join(dir, "cert.pem"),
		RootCA: filepath.Join(dir, "root.pem"),
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	require.NoError(t, os.WriteFile(paths.Key, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	require.NoError(t, os.WriteFile(paths.Cert, certPEM, 0o644))
	require.NoError(t, os.WriteFile(paths.RootCA, certPEM, 0o644))
	return paths
}

func TestResolveIdentity(t *testing.T) {
	_, err := ResolveIdentity(wlantest.NewMemStore(nil))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{secrets.MQTTClientID, secrets.MQTTEndpoint}, cfgErr.Missing)

	_, err = ResolveIdentity(wlantest.NewMemStore(map[string]string{secrets.MQTTClientID: "thing-1"}))
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{secrets.MQTTEndpoint}, cfgErr.Missing)

	id, err := ResolveIdentity(wlantest.NewMemStore(map[string]string{
		secrets.MQTTClientID: "thing-1",
		secrets.MQTTEndpoint: "broker.example.com",
	}))
	require.NoError(t, err)
	assert.Equal(t, Identity{ClientID: "thing-1", Endpoint: "broker.example.com"}, id)
}

func TestLoadTLS(t *testing.T) {
	cfg, err := LoadTLS(writeTLS(t))
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.NotNil(t, cfg.RootCAs)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	_, err = LoadTLS(TLSPaths{Key: "/nonexistent/key.pem", Cert: "/nonexistent/cert.pem"})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Missing, "/nonexistent/key.pem")
}

func TestPublisherIdleUntilReady(t *testing.T) {
	p := NewPublisher(wlantest.NewMemStore(nil), Config{}, nil, nil, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.NoError(t, p.Run(ctx, supervisor.NewEvent()), "missing identity is not checked before ready")
}

func TestPublisherMissingIdentityIsFatal(t *testing.T) {
	p := NewPublisher(wlantest.NewMemStore(nil), Config{}, nil, nil, zerolog.Nop())
	ready := supervisor.NewEvent()
	ready.Set()

	err := p.Run(context.Background(), ready)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestPublisherPublishesWhileReady(t *testing.T) {
	store := wlantest.NewMemStore(map[string]string{
		secrets.MQTTClientID: "thing-1",
		secrets.MQTTEndpoint: "broker.example.com",
	})
	client := &fakeClient{}
	var gotID Identity
	factory := func(id Identity, cfg *tls.Config) Client {
		gotID = id
		return client
	}
	status := func(context.Context) any { return map[string]string{"mode": "station"} }
	p := NewPublisher(store, Config{TLS: writeTLS(t), Interval: 5 * time.Millisecond}, factory, status, zerolog.Nop())

	ready := supervisor.NewEvent()
	ready.Set()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, ready) }()

	require.Eventually(t, func() bool { return len(client.Messages()) >= 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "thing-1", gotID.ClientID)
	msg := client.Messages()[0]
	assert.Equal(t, "wlanboot/thing-1/status", msg.topic)

	var payload struct {
		ClientID string            `json:"client_id"`
		Device   map[string]string `json:"device"`
	}
	require.NoError(t, json.Unmarshal(msg.payload, &payload))
	assert.Equal(t, "thing-1", payload.ClientID)
	assert.Equal(t, "station", payload.Device["mode"])
}

func TestPublisherPausesWhenNotReady(t *testing.T) {
	store := wlantest.NewMemStore(map[string]string{
		secrets.MQTTClientID: "thing-1",
		secrets.MQTTEndpoint: "broker.example.com",
	})
	client := &fakeClient{}
	factory := func(Identity, *tls.Config) Client { return client }
	p := NewPublisher(store, Config{TLS: writeTLS(t), Interval: 5 * time.Millisecond}, factory, nil, zerolog.Nop())

	ready := supervisor.NewEvent()
	ready.Set()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, ready) }()

	require.Eventually(t, func() bool { return len(client.Messages()) >= 1 }, time.Second, time.Millisecond)
	ready.Clear()
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.disconnect == 1
	}, time.Second, time.Millisecond)

	paused := len(client.Messages())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, paused, len(client.Messages()))

	cancel()
	require.NoError(t, <-done)
}

func TestPublisherRetriesConnect(t *testing.T) {
	store := wlantest.NewMemStore(map[string]string{
		secrets.MQTTClientID: "thing-1",
		secrets.MQTTEndpoint: "broker.example.com",
	})
	client := &fakeClient{connectErr: errors.New("refused")}
	factory := func(Identity, *tls.Config) Client { return client }
	p := NewPublisher(store, Config{TLS: writeTLS(t), Interval: time.Hour}, factory, nil, zerolog.Nop())

	ready := supervisor.NewEvent()
	ready.Set()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	p.backoff = retry.NewBackoff(time.Millisecond, 2*time.Millisecond, 2, zerolog.Nop())
	go func() { done <- p.Run(ctx, ready) }()

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.connects == 3
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, client.Messages())
}

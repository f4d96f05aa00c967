// Package publish reports device status to an MQTT broker over TLS once the
// device is online.
package publish

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/wlanboot/pkg/secrets"
)

// ConfigurationError means the telemetry link cannot be set up from the
// stored configuration. It is not a connectivity problem and not retried.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: missing " + strings.Join(e.Missing, ", ")
}

// SecretGetter reads stored secrets.
type SecretGetter interface {
	Get(name string) (string, error)
}

// Identity of the device on the broker.
type Identity struct {
	ClientID string
	Endpoint string
}

// ResolveIdentity reads MQTT_CLIENT_ID and MQTT_ENDPOINT.
func ResolveIdentity(store SecretGetter) (Identity, error) {
	clientID, err := store.Get(secrets.MQTTClientID)
	if err != nil {
		return Identity{}, err
	}
	endpoint, err := store.Get(secrets.MQTTEndpoint)
	if err != nil {
		return Identity{}, err
	}
	var missing []string
	if clientID == "" {
		missing = append(missing, secrets.MQTTClientID)
	}
	if endpoint == "" {
		missing = append(missing, secrets.MQTTEndpoint)
	}
	if len(missing) > 0 {
		return Identity{}, &ConfigurationError{Missing: missing}
	}
	return Identity{ClientID: clientID, Endpoint: endpoint}, nil
}

// TLSPaths locate the PEM encoded client key, client certificate and root
// CA.
type TLSPaths struct {
	Key    string
	Cert   string
	RootCA string
}

// LoadTLS builds a client TLS config. Missing files are reported as a
// ConfigurationError.
func LoadTLS(paths TLSPaths) (*tls.Config, error) {
	var missing []string
	for _, p := range []string{paths.Key, paths.Cert, paths.RootCA} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			missing = append(missing, p)
		}
	}
	if paths.Key == "" || paths.Cert == "" {
		missing = append(missing, "client certificate")
	}
	if len(missing) > 0 {
		return nil, &ConfigurationError{Missing: missing}
	}

	cert, err := tls.LoadX509KeyPair(paths.Cert, paths.Key)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if paths.RootCA != "" {
		pem, err := os.ReadFile(paths.RootCA)
		if err != nil {
			return nil, fmt.Errorf("read root ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("root ca %s: no certificates found", paths.RootCA)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

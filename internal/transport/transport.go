// Package transport opens the byte streams MQTT packets travel over.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"io/ioutil"
	"net"
	"net/url"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"

	"github.com/RoanBrand/mqttc/internal/config"
)

// Transport opens a new connection to the broker every time Connect is called.
type Transport interface {
	Connect(ctx context.Context) (io.ReadWriteCloser, error)
}

// TCP is a plain TCP connection.
type TCP struct {
	Address string
	Dialer  net.Dialer
}

func (t *TCP) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	conn, err := t.Dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", t.Address)
	}
	return conn, nil
}

// TLS is a TCP connection secured with TLS.
type TLS struct {
	Address string
	Config  *tls.Config
	Dialer  net.Dialer
}

func (t *TLS) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	d := tls.Dialer{NetDialer: &t.Dialer, Config: t.Config}
	conn, err := d.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s with TLS", t.Address)
	}
	return conn, nil
}

// SOCKS tunnels the connection through a SOCKS5 proxy, optionally with TLS on top.
type SOCKS struct {
	Proxy   string
	Address string
	Auth    *proxy.Auth
	// TLSConfig enables TLS with the broker when not nil.
	TLSConfig *tls.Config
}

func (t *SOCKS) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	d, err := proxy.SOCKS5("tcp", t.Proxy, t.Auth, proxy.Direct)
	if err != nil {
		return nil, errors.Wrap(err, "socks5 proxy setup")
	}

	var conn net.Conn
	if cd, ok := d.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", t.Address)
	} else {
		conn, err = d.Dial("tcp", t.Address)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s through proxy %s", t.Address, t.Proxy)
	}
	if t.TLSConfig == nil {
		return conn, nil
	}

	cfg := t.TLSConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName, _, _ = net.SplitHostPort(t.Address)
	}
	tc := tls.Client(conn, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "TLS handshake through proxy")
	}
	return tc, nil
}

// FromConfig builds the transport for c.Broker. c must be validated.
func FromConfig(c *config.Config) (Transport, error) {
	b := &c.Broker

	var tlsConfig *tls.Config
	if b.Network == config.TLS || b.Network == config.WSS || (b.Network == config.SOCKS && b.Proxy.TLS) {
		var err error
		if tlsConfig, err = loadTLSConfig(c); err != nil {
			return nil, err
		}
	}

	switch b.Network {
	case config.TCP:
		return &TCP{Address: b.Address}, nil
	case config.TLS:
		return &TLS{Address: b.Address, Config: tlsConfig}, nil
	case config.WebSocket, config.WSS:
		u := url.URL{Scheme: b.Network, Host: b.Address, Path: b.Path}
		return &WebSocket{URL: u.String(), TLSConfig: tlsConfig}, nil
	case config.SOCKS:
		t := &SOCKS{Proxy: b.Proxy.Address, Address: b.Address, TLSConfig: tlsConfig}
		if b.Proxy.Username != "" {
			t.Auth = &proxy.Auth{User: b.Proxy.Username, Password: b.Proxy.Password}
		}
		return t, nil
	default:
		return nil, errors.Errorf("unknown broker network %q", b.Network)
	}
}

func loadTLSConfig(c *config.Config) (*tls.Config, error) {
	t := &c.Broker.TLS
	cfg := &tls.Config{
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}

	if t.CA != "" {
		pem, err := ioutil.ReadFile(t.CA)
		if err != nil {
			return nil, errors.Wrap(err, "reading CA file")
		}
		cfg.RootCAs = x509.NewCertPool()
		if !cfg.RootCAs.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("no certificates in CA file %s", t.CA)
		}
	}

	if t.Cert != "" {
		cert, err := tls.LoadX509KeyPair(t.Cert, t.Key)
		if err != nil {
			return nil, errors.Wrap(err, "loading client certificate")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

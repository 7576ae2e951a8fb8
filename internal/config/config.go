package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Networks a broker can be reached over.
const (
	TCP       = "tcp"
	TLS       = "tls"
	WebSocket = "ws"
	WSS       = "wss"
	SOCKS     = "socks5"
)

type Config struct {
	// Broker specifies where to connect to.
	Broker struct {
		// Network is one of "tcp" (default), "tls", "ws", "wss" and "socks5".
		Network string `json:"network" toml:"network"`

		// Address in the form "host:port". If just the host is given the port
		// defaults by network: 1883 for tcp and socks5, 8883 for tls, 80 for ws and 443 for wss.
		// Defaults to "localhost".
		Address string `json:"address" toml:"address"`

		// Path of the websocket endpoint. Default "/mqtt".
		Path string `json:"path" toml:"path"`

		// Proxy is the SOCKS5 proxy address for network "socks5". Port defaults to 1080.
		Proxy struct {
			Address  string `json:"address" toml:"address"`
			Username string `json:"username" toml:"username"`
			Password string `json:"password" toml:"password"`
			// TLS is started with the broker through the proxy tunnel.
			TLS bool `json:"tls" toml:"tls"`
		} `json:"proxy" toml:"proxy"`

		TLS struct {
			CA                 string `json:"ca" toml:"ca"`
			ServerName         string `json:"server_name" toml:"server_name"`
			InsecureSkipVerify bool   `json:"insecure_skip_verify" toml:"insecure_skip_verify"`
			keyPair
		} `json:"tls" toml:"tls"`
	} `json:"broker" toml:"broker"`

	// Connect holds the CONNECT parameters.
	Connect struct {
		// ClientID defaults to "mqttc_" followed by a random UUID.
		ClientID string `json:"client_id" toml:"client_id"`
		Username string `json:"username" toml:"username"`
		Password string `json:"password" toml:"password"`

		// Keep Alive in s. Default 60s. Set to -1 to disable.
		KeepAlive int64 `json:"keep_alive" toml:"keep_alive"`

		// PersistentSession connects with Clean Session 0.
		PersistentSession bool `json:"persistent_session" toml:"persistent_session"`

		// CONNECT is resent every ConnectDelayMS ms until CONNACK arrives. 0 disables.
		ConnectDelayMS int64 `json:"connect_delay_ms" toml:"connect_delay_ms"`

		// Resubscribe re-issues recorded subscriptions after a reconnect
		// when the broker did not keep the session.
		Resubscribe bool `json:"resubscribe" toml:"resubscribe"`

		Will *struct {
			Topic   string `json:"topic" toml:"topic"`
			Payload string `json:"payload" toml:"payload"`
			QoS     uint8  `json:"qos" toml:"qos"`
			Retain  bool   `json:"retain" toml:"retain"`
		} `json:"will" toml:"will"`
	} `json:"connect" toml:"connect"`

	// Reconnect configures the default reconnect strategy.
	Reconnect struct {
		Disabled bool `json:"disabled" toml:"disabled"`
		// Default 60.
		MaxAttempts int `json:"max_attempts" toml:"max_attempts"`
		// Delay before the first attempt in ms. Default 1000.
		IntervalMS    int64   `json:"interval_ms" toml:"interval_ms"`
		Multiplier    float64 `json:"multiplier" toml:"multiplier"`
		MaxIntervalMS int64   `json:"max_interval_ms" toml:"max_interval_ms"`
		Jitter        bool    `json:"jitter" toml:"jitter"`
	} `json:"reconnect" toml:"reconnect"`

	// Store optionally keeps session state on disk in Dir. In memory if empty.
	Store struct {
		Dir string `json:"dir" toml:"dir"`
	} `json:"store" toml:"store"`

	// Log configures optional log output file as well as the log level setting.
	Log struct {
		File  string `json:"file" toml:"file"`
		Level string `json:"level" toml:"level"`
	} `json:"log" toml:"log"`
}

type keyPair struct {
	Cert string `json:"cert" toml:"cert"`
	Key  string `json:"key" toml:"key"`
}

// LoadFromFile reads a JSON config file, or TOML if the file name ends in ".toml".
func (c *Config) LoadFromFile(fPath string) error {
	if strings.EqualFold(filepath.Ext(fPath), ".toml") {
		if _, err := toml.DecodeFile(fPath, c); err != nil {
			return errors.Wrap(err, "error reading config file")
		}
		return c.Validate()
	}

	f, err := os.Open(fPath)
	if err != nil {
		return errors.Wrap(err, "error opening config file")
	}

	defer f.Close()

	if err = json.NewDecoder(f).Decode(c); err != nil {
		return errors.Wrap(err, "error reading config file")
	}

	return c.Validate()
}

// Validate checks the config and fills in defaults. It may be called more than once.
func (c *Config) Validate() error {
	b := &c.Broker
	if b.Network == "" {
		b.Network = TCP
	}
	b.Network = strings.ToLower(b.Network)
	if b.Address == "" {
		b.Address = "localhost"
	}

	var port string
	switch b.Network {
	case TCP, SOCKS:
		port = ":1883"
	case TLS:
		port = ":8883"
	case WebSocket:
		port = ":80"
	case WSS:
		port = ":443"
	default:
		return errors.Errorf("unknown broker network %q", b.Network)
	}
	if !strings.Contains(b.Address, ":") {
		b.Address += port // if just ip/host specified
	}

	if b.Network == WebSocket || b.Network == WSS {
		if b.Path == "" {
			b.Path = "/mqtt"
		} else if !strings.HasPrefix(b.Path, "/") {
			b.Path = "/" + b.Path
		}
	}

	if b.Network == SOCKS {
		if b.Proxy.Address == "" {
			return errors.New("socks5 network requires a proxy address")
		}
		if !strings.Contains(b.Proxy.Address, ":") {
			b.Proxy.Address += ":1080"
		}
	}

	if (b.TLS.Cert == "") != (b.TLS.Key == "") {
		return errors.New("invalid TLS certificate and/or private key file path setup")
	}

	cn := &c.Connect
	if cn.ClientID == "" {
		cn.ClientID = "mqttc_" + uuid.New().String()
	}
	if cn.KeepAlive == 0 {
		cn.KeepAlive = 60
	} else if cn.KeepAlive > 0xFFFF {
		return errors.Errorf("keep alive %ds too large", cn.KeepAlive)
	}
	if cn.Password != "" && cn.Username == "" { // [MQTT-3.1.2-22]
		return errors.New("password requires a username")
	}
	if cn.Will != nil {
		if cn.Will.Topic == "" {
			return errors.New("will requires a topic")
		}
		if cn.Will.QoS > 2 {
			return errors.Errorf("invalid will QoS %d", cn.Will.QoS)
		}
	}

	r := &c.Reconnect
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 60
	}
	if r.IntervalMS == 0 {
		r.IntervalMS = 1000
	}

	if c.Log.Level != "" {
		switch strings.ToLower(c.Log.Level) {
		case "error", "warn", "info", "debug":
		default:
			return errors.Errorf("unknown log level %q", c.Log.Level)
		}
	}

	return nil
}

// KeepAliveDuration returns the keep alive period, 0 when disabled.
func (c *Config) KeepAliveDuration() time.Duration {
	if c.Connect.KeepAlive < 0 {
		return 0
	}
	return time.Duration(c.Connect.KeepAlive) * time.Second
}

func (c *Config) ConnectDelay() time.Duration {
	return time.Duration(c.Connect.ConnectDelayMS) * time.Millisecond
}

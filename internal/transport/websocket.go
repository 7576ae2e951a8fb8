package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WebSocket carries MQTT in binary websocket frames. URL scheme is ws or wss.
type WebSocket struct {
	URL       string
	TLSConfig *tls.Config
	Header    http.Header
}

func (t *WebSocket) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	d := websocket.Dialer{
		Subprotocols:    []string{"mqtt"}, // [MQTT-6.0.0-3]
		TLSClientConfig: t.TLSConfig,
		Proxy:           http.ProxyFromEnvironment,
	}
	conn, _, err := d.DialContext(ctx, t.URL, t.Header)
	if err != nil {
		return nil, errors.Wrapf(err, "websocket dial %s", t.URL)
	}
	if conn.Subprotocol() != "mqtt" { // [MQTT-6.0.0-4]
		conn.Close()
		return nil, errors.Errorf("server at %s did not accept sub protocol 'mqtt'", t.URL)
	}
	return &wsConn{Conn: conn}, nil
}

// wsConn turns a websocket connection into a byte stream.
type wsConn struct {
	*websocket.Conn
	r io.Reader
}

func (c *wsConn) Write(p []byte) (int, error) {
	err := c.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			var err error
			var mt int
			if mt, c.r, err = c.NextReader(); err != nil {
				return 0, err
			}
			if mt != websocket.BinaryMessage { // [MQTT-6.0.0-1]
				return 0, errors.New("not binary message")
			}
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

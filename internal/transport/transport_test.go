package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/RoanBrand/mqttc/internal/config"
)

func TestTCP(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		io.Copy(c, c)
	}()

	conn, err := (&TCP{Address: l.Addr().String()}).Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0xC0, 0x00})
	require.NoError(t, err)
	b := make([]byte, 2)
	_, err = io.ReadFull(conn, b)
	require.NoError(t, err)
	require.Equal(t, []byte{0xC0, 0x00}, b)
}

func wsServer(t *testing.T, protocols []string) *httptest.Server {
	up := websocket.Upgrader{
		Subprotocols: protocols,
		CheckOrigin:  func(*http.Request) bool { return true },
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, p, err := conn.ReadMessage()
			if err != nil {
				return
			}
			// answer in two frames to exercise reads across frames
			conn.WriteMessage(mt, p[:1])
			conn.WriteMessage(mt, p[1:])
		}
	}))
}

func TestWebSocket(t *testing.T) {
	t.Parallel()

	srv := wsServer(t, []string{"mqtt"})
	defer srv.Close()

	ws := &WebSocket{URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/mqtt"}
	conn, err := ws.Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0xD0, 0x00, 0xE0})
	require.NoError(t, err)
	b := make([]byte, 3)
	_, err = io.ReadFull(conn, b)
	require.NoError(t, err)
	require.Equal(t, []byte{0xD0, 0x00, 0xE0}, b)
}

func TestWebSocketSubprotocolRequired(t *testing.T) {
	t.Parallel()

	srv := wsServer(t, nil)
	defer srv.Close()

	ws := &WebSocket{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}
	_, err := ws.Connect(context.Background())
	require.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	for network, exp := range map[string]interface{}{
		config.TCP:       &TCP{},
		config.TLS:       &TLS{},
		config.WebSocket: &WebSocket{},
		config.WSS:       &WebSocket{},
		config.SOCKS:     &SOCKS{},
	} {
		var c config.Config
		c.Broker.Network, c.Broker.Address = network, "broker"
		c.Broker.Proxy.Address = "proxy"
		c.Broker.Proxy.Username = "u"
		require.NoError(t, c.Validate())

		tr, err := FromConfig(&c)
		require.NoError(t, err)
		require.IsType(t, exp, tr, network)

		switch tr := tr.(type) {
		case *WebSocket:
			require.Equal(t, network+"://broker:"+map[string]string{config.WebSocket: "80", config.WSS: "443"}[network]+"/mqtt", tr.URL)
			if network == config.WSS {
				require.NotNil(t, tr.TLSConfig)
			}
		case *SOCKS:
			require.Equal(t, "proxy:1080", tr.Proxy)
			require.Equal(t, "u", tr.Auth.User)
			require.Nil(t, tr.TLSConfig)
		}
	}
}

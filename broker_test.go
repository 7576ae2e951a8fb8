package mqttc

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/RoanBrand/mqttc/internal/packet"
	"github.com/RoanBrand/mqttc/internal/parser"
)

const testTimeout = 3 * time.Second

// pipeTransport connects the client to an in-memory fakeBroker.
type pipeTransport struct {
	brokers chan *fakeBroker
}

// errBrokenPipe is returned by writes on a client connection after breakWrites.
var errBrokenPipe = errors.New("broken pipe")

// clientConn is the client side of the pipe. Its writes can be made to fail.
type clientConn struct {
	net.Conn
	broken int32
}

func (c *clientConn) Write(p []byte) (int, error) {
	if atomic.LoadInt32(&c.broken) == 1 {
		return 0, errBrokenPipe
	}
	return c.Conn.Write(p)
}

func (p *pipeTransport) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	client, server := net.Pipe()
	b := newFakeBroker(server)
	b.client = &clientConn{Conn: client}
	select {
	case p.brokers <- b:
		return b.client, nil
	case <-ctx.Done():
		client.Close()
		server.Close()
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) next(t *testing.T) *fakeBroker {
	t.Helper()
	select {
	case b := <-p.brokers:
		return b
	case <-time.After(testTimeout):
		t.Fatal("client did not connect")
		return nil
	}
}

// fakeBroker is the server side of one connection. Everything the client
// sends is decoded on a separate goroutine so client writes never block.
type fakeBroker struct {
	conn   net.Conn
	client *clientConn
	in     chan packet.Packet
}

// breakWrites makes every following write of the client fail.
func (b *fakeBroker) breakWrites() {
	atomic.StoreInt32(&b.client.broken, 1)
}

func newFakeBroker(conn net.Conn) *fakeBroker {
	b := &fakeBroker{conn: conn, in: make(chan packet.Packet, 64)}
	go b.reader()
	return b
}

func (b *fakeBroker) reader() {
	defer close(b.in)
	p := parser.New()
	rx := make([]byte, 1024)
	for {
		n, err := b.conn.Read(rx)
		results, perr := p.Parse(rx[:n])
		for _, r := range results {
			b.in <- r.Packet
		}
		if err != nil || perr != nil {
			return
		}
	}
}

func (b *fakeBroker) expect(t *testing.T) packet.Packet {
	t.Helper()
	select {
	case p, ok := <-b.in:
		require.True(t, ok, "connection closed by client")
		return p
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for packet")
		return nil
	}
}

func (b *fakeBroker) expectClosed(t *testing.T) {
	t.Helper()
	for {
		select {
		case p, ok := <-b.in:
			if !ok {
				return
			}
			t.Fatalf("expected connection to close, got %s", p.Type())
		case <-time.After(testTimeout):
			t.Fatal("connection not closed")
		}
	}
}

func (b *fakeBroker) write(p packet.Packet) error {
	raw, err := packet.Write(p)
	if err != nil {
		return err
	}
	_, err = b.conn.Write(raw)
	return err
}

func (b *fakeBroker) send(t *testing.T, p packet.Packet) {
	t.Helper()
	raw, err := packet.Write(p)
	require.NoError(t, err)
	b.sendRaw(t, raw)
}

func (b *fakeBroker) sendRaw(t *testing.T, raw []byte) {
	t.Helper()
	require.NoError(t, b.conn.SetWriteDeadline(time.Now().Add(testTimeout)))
	_, err := b.conn.Write(raw)
	require.NoError(t, err)
}

// sync makes sure everything sent before was processed by the client.
func (b *fakeBroker) sync(t *testing.T) {
	t.Helper()
	b.send(t, packet.PingReq{})
	require.Equal(t, packet.PingResp{}, b.expect(t))
}

func newTestClient(t *testing.T) (*Client, *pipeTransport) {
	tr := &pipeTransport{brokers: make(chan *fakeBroker, 4)}
	c := NewClient()
	c.Config.Connect.ClientID = "test"
	c.Config.Reconnect.Disabled = true
	c.Transport = tr
	t.Cleanup(func() { c.Close() })
	return c, tr
}

// connectClient connects c and answers CONNECT with ack.
func connectClient(t *testing.T, c *Client, tr *pipeTransport, ack packet.ConnAck) *fakeBroker {
	t.Helper()
	errs := make(chan error, 1)
	go func() {
		_, err := c.Connect(context.Background())
		errs <- err
	}()

	b := tr.next(t)
	require.IsType(t, packet.Connect{}, b.expect(t))
	b.send(t, ack)
	require.NoError(t, waitErr(t, errs))
	return b
}

func waitErr(t *testing.T, errs <-chan error) error {
	t.Helper()
	select {
	case err := <-errs:
		return err
	case <-time.After(testTimeout):
		t.Fatal("operation did not return")
		return nil
	}
}

func waitMessage(t *testing.T, msgs <-chan Message) Message {
	t.Helper()
	select {
	case m := <-msgs:
		return m
	case <-time.After(testTimeout):
		t.Fatal("no message delivered")
		return Message{}
	}
}

package httpx

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pipeConn adapts net.Pipe's two ends into a single connection so a
// request written on one end can be read back on the other, the way a
// server handler and its client would see the same bytes.
func pipeConn(t *testing.T) (client, server net.Conn) {
	t.Helper()
	client, server = net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestConnectionClientServerExchange(t *testing.T) {
	clientConn, serverConn := pipeConn(t)

	client := NewConnectionFromStream(clientConn, DefaultConfig(), nil)
	server := NewConnectionFromStream(serverConn, DefaultConfig(), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		req, err := server.ReceiveRequest(context.Background())
		require.NoError(t, err)
		require.Equal(t, "POST", req.StartLine.Method)
		body, err := req.Body.ReadAll()
		require.NoError(t, err)
		require.Equal(t, "ping", string(body))
		require.NoError(t, req.Body.Close())

		resp, err := server.SendResponse(context.Background(), "HTTP/1.1", 200, "OK")
		require.NoError(t, err)
		resp.Sized(4)
		_, err = resp.Write([]byte("pong"))
		require.NoError(t, err)
		require.NoError(t, resp.Close())
	}()

	rw, err := client.SendRequest(context.Background(), "POST", "/ping", "HTTP/1.1")
	require.NoError(t, err)
	rw.Sized(4)
	_, err = rw.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	resp, err := client.ReceiveResponse(context.Background())
	require.NoError(t, err)
	require.Equal(t, 200, resp.StartLine.StatusCode)
	body, err := resp.Body.ReadAll()
	require.NoError(t, err)
	require.Equal(t, "pong", string(body))
	require.NoError(t, resp.Body.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server goroutine did not finish")
	}
}

func TestConnectionRefusesAfterClose(t *testing.T) {
	clientConn, _ := pipeConn(t)
	conn := NewConnectionFromStream(clientConn, DefaultConfig(), nil)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "Close must be idempotent")

	_, err := conn.SendRequest(context.Background(), "GET", "/", "HTTP/1.1")
	require.ErrorIs(t, err, ErrConnectionClosed)

	_, err = conn.ReceiveRequest(context.Background())
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConnectionRefusesReentrantWriteBeforeClose(t *testing.T) {
	clientConn, _ := pipeConn(t)
	conn := NewConnectionFromStream(clientConn, DefaultConfig(), nil)

	rw, err := conn.SendRequest(context.Background(), "GET", "/a", "HTTP/1.1")
	require.NoError(t, err)
	rw.Sized(0)

	_, err = conn.SendRequest(context.Background(), "GET", "/b", "HTTP/1.1")
	require.ErrorIs(t, err, ErrMessageInFlight)

	require.NoError(t, rw.Close())

	rw2, err := conn.SendRequest(context.Background(), "GET", "/c", "HTTP/1.1")
	require.NoError(t, err)
	require.NoError(t, rw2.Close())
}

func TestConnectionIDIsStable(t *testing.T) {
	clientConn, _ := pipeConn(t)
	conn := NewConnectionFromStream(clientConn, DefaultConfig(), nil)
	require.Equal(t, conn.ID(), conn.ID())
	require.NotEqual(t, conn.ID().String(), "")
}

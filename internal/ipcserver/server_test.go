package ipcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedtrace/logcore/internal/normalize"
)

func startTestServer(t *testing.T) net.Addr {
	t.Helper()
	srv := NewServer("127.0.0.1:0", normalize.New(nil))

	ln, err := net.Listen("tcp", srv.addr)
	require.NoError(t, err)
	srv.addr = ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go srv.runInteractive(ctx)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handleConn(ctx, conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })

	return ln.Addr()
}

func sendLine(t *testing.T, conn net.Conn, req Request) Response {
	t.Helper()
	encoded, err := json.Marshal(req)
	require.NoError(t, err)
	encoded = append(encoded, '\n')
	_, err = conn.Write(encoded)
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := reader.ReadString('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	return resp
}

func TestServerPingRoundTrip(t *testing.T) {
	addr := startTestServer(t)
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	resp := sendLine(t, conn, Request{Type: "Ping"})
	assert.Equal(t, "Ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Pong", data["type"])
}

func TestServerInvalidJSONKeepsConnectionOpen(t *testing.T) {
	addr := startTestServer(t)
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err = conn.Write([]byte("{not json\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	assert.Equal(t, "Error", resp.Status)

	// The connection must still be usable afterwards.
	encoded, _ := json.Marshal(Request{Type: "Ping"})
	encoded = append(encoded, '\n')
	_, err = conn.Write(encoded)
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	assert.Equal(t, "Ok", resp.Status)
}

func TestServerUnknownCommand(t *testing.T) {
	addr := startTestServer(t)
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	resp := sendLine(t, conn, Request{Type: "not-a-real-command"})
	assert.Equal(t, "Error", resp.Status)
}

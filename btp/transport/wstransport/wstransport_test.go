package wstransport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var errStop = errors.New("stop reading")

func newServerAndClient(t *testing.T) (*Transport, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	serverConn := <-connCh
	return New(serverConn), client
}

func TestWriteDeliversBinaryMessage(t *testing.T) {
	transport, client := newServerAndClient(t)

	require.NoError(t, transport.Write(context.Background(), []byte{1, 2, 3}))

	kind, data, err := client.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	require.Equal(t, []byte{1, 2, 3}, data)
}

func TestReadLoopDeliversInboundFrames(t *testing.T) {
	transport, client := newServerAndClient(t)

	var got [][]byte
	done := make(chan error, 1)
	go func() {
		done <- transport.ReadLoop(context.Background(), func(_ context.Context, data []byte) error {
			got = append(got, append([]byte(nil), data...))
			if len(got) == 2 {
				return errStop
			}
			return nil
		})
	}()

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{4, 5}))
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{6, 7}))

	err := <-done
	require.ErrorIs(t, err, errStop)
	require.Equal(t, [][]byte{{4, 5}, {6, 7}}, got)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	transport, _ := newServerAndClient(t)

	transport.Disconnect(context.Background())
	require.NotPanics(t, func() { transport.Disconnect(context.Background()) })

	err := transport.Write(context.Background(), []byte{1})
	require.Equal(t, websocket.ErrCloseSent, err)
}

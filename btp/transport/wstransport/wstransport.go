// Package wstransport implements session.Transport over a *websocket.Conn,
// standing in for the BLE GATT write characteristic for local dev and the
// demo CLI (SPEC_FULL.md §3.3). It carries no BLE semantics: no GATT
// discovery, no advertising, no pairing — those remain spec.md Non-goals.
// It is just a duplex byte pipe, grounded on lcalzada-xor-wmap's
// internal/adapters/web/websocket ws_manager.go use of gorilla/websocket,
// adapted from its JSON broadcast use case to raw binary BTP frames.
package wstransport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeDeadline = 5 * time.Second

// Transport implements session.Transport (and session.MessageSink pumping,
// via ReadLoop) over a single websocket connection. One Transport per BTP
// session, same ownership model as the teacher's per-handler transport.
type Transport struct {
	conn *websocket.Conn

	mu           sync.Mutex
	disconnected bool
}

// New wraps an already-established *websocket.Conn.
func New(conn *websocket.Conn) *Transport {
	return &Transport{conn: conn}
}

// Write sends data as one binary websocket message, serialized against
// concurrent writes the way ws_manager.go's broadcastMessage guards Clients.
func (t *Transport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disconnected {
		return websocket.ErrCloseSent
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Disconnect closes the underlying connection. Idempotent.
func (t *Transport) Disconnect(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disconnected {
		return
	}
	t.disconnected = true
	_ = t.conn.Close()
}

// ReadLoop blocks reading binary messages from the connection and invokes
// onData for each one, until the connection closes or ctx is done. It is
// the demo CLI's pump from the websocket into Engine.HandleIncomingBLEData.
func (t *Transport) ReadLoop(ctx context.Context, onData func(context.Context, []byte) error) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if err := onData(ctx, data); err != nil {
			return err
		}
	}
}

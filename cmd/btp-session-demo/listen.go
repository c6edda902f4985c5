package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mattertools/btp-session/btp/clock"
	"github.com/mattertools/btp-session/btp/handshake"
	"github.com/mattertools/btp-session/btp/session"
	"github.com/mattertools/btp-session/btp/transport/wstransport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type stdoutSink struct{}

func (stdoutSink) DeliverMatterMessage(ctx context.Context, msg []byte) {
	fmt.Printf("< %x\n", msg)
}

func listenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Accept one peer connection and run the handshake responder",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, g, cfg, err := rootContext(cmd)
			if err != nil {
				return err
			}

			accepted := make(chan *websocket.Conn, 1)
			mux := http.NewServeMux()
			mux.HandleFunc("/btp", func(w http.ResponseWriter, r *http.Request) {
				conn, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					dlog.Errorf(ctx, "upgrade failed: %v", err)
					return
				}
				accepted <- conn
			})
			srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

			g.Go("http", func(ctx context.Context) error {
				dlog.Infof(ctx, "listening on ws://%s/btp", cfg.ListenAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})
			g.Go("session", func(ctx context.Context) error {
				defer func() { _ = srv.Close() }()

				conn := <-accepted
				transport := wstransport.New(conn)

				_, req, err := conn.ReadMessage()
				if err != nil {
					return err
				}

				var maxDataSize *uint16
				if cfg.AdvertisedMaxDataSize != 0 {
					v := cfg.AdvertisedMaxDataSize
					maxDataSize = &v
				}

				eng, err := handshake.CreateFromHandshakeRequest(ctx, req, maxDataSize, transport, stdoutSink{}, clock.RealClock{}, nil)
				if err != nil {
					return err
				}
				dlog.Infof(ctx, "session %s established", eng.ID())

				return pumpStdinAndRead(ctx, transport, eng)
			})

			return g.Wait()
		},
	}
}

// pumpStdinAndRead reads newline-delimited lines from stdin and sends each
// line's raw bytes as a Matter message, while a background reader delivers inbound
// websocket frames into the engine.
func pumpStdinAndRead(ctx context.Context, transport *wstransport.Transport, eng *session.Engine) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- transport.ReadLoop(ctx, eng.HandleIncomingBLEData)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := eng.SendMatterMessage(ctx, append([]byte(nil), line...)); err != nil {
			dlog.Errorf(ctx, "send failed: %v", err)
		}
	}
	return <-errCh
}

package main

import (
	"context"

	"github.com/datawire/dlib/dlog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mattertools/btp-session/btp/clock"
	"github.com/mattertools/btp-session/btp/frame"
	"github.com/mattertools/btp-session/btp/session"
	"github.com/mattertools/btp-session/btp/transport/wstransport"
)

func dialCommand() *cobra.Command {
	var proposedMTU uint16
	var proposedWindow uint8

	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Connect to a listening peer and run the handshake initiator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, g, cfg, err := rootContext(cmd)
			if err != nil {
				return err
			}

			conn, _, err := websocket.DefaultDialer.Dial("ws://"+cfg.DialAddr+"/btp", nil)
			if err != nil {
				return err
			}
			transport := wstransport.New(conn)

			reqBytes, err := frame.EncodeHandshakeRequest(frame.HandshakeRequest{
				Versions:         []uint8{4},
				ATTMTU:           proposedMTU,
				ClientWindowSize: proposedWindow,
			})
			if err != nil {
				return err
			}
			if err := transport.Write(ctx, reqBytes); err != nil {
				return err
			}

			_, respBytes, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			resp, err := frame.DecodeHandshakeResponse(respBytes)
			if err != nil {
				return err
			}
			dlog.Infof(ctx, "negotiated version=%d attMtu=%d window=%d", resp.Version, resp.ATTMTU, resp.WindowSize)

			eng := session.New(ctx, uuid.New(), resp.Version, resp.ATTMTU, resp.WindowSize, clock.RealClock{}, transport, stdoutSink{}, nil)

			g.Go("session", func(ctx context.Context) error {
				return pumpStdinAndRead(ctx, transport, eng)
			})
			return g.Wait()
		},
	}
	cmd.Flags().Uint16Var(&proposedMTU, "mtu", 185, "proposed ATT_MTU")
	cmd.Flags().Uint8Var(&proposedWindow, "window", 6, "proposed client window size")
	return cmd
}

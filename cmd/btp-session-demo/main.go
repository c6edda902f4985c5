// Command btp-session-demo exercises the BTP session core end to end over
// the wstransport dev transport (SPEC_FULL.md §3.4): not part of the
// spec'd session core's public API, a manual-verification tool only.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dgroup"
	"github.com/spf13/cobra"

	"github.com/mattertools/btp-session/internal/config"
	"github.com/mattertools/btp-session/internal/logging"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "btp-session-demo",
		Short: "Manual end-to-end exerciser for the BTP session core",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "optional YAML config file")
	root.AddCommand(listenCommand(), dialCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootContext loads config, installs the process logger, and wraps the
// result in a supervised goroutine group, the way service.go's run() does
// for the daemon process.
func rootContext(cmd *cobra.Command) (context.Context, *dgroup.Group, config.Config, error) {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx, cfgPath)
	if err != nil {
		return nil, nil, cfg, err
	}
	ctx = logging.InitContext(ctx, "btp-session-demo", logging.ParseLevel(cfg.LogLevel))
	ctx = dgroup.WithGoroutineName(ctx, "/btp-session-demo")

	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		EnableSignalHandling: true,
		ShutdownOnNonError:   true,
	})
	return ctx, g, cfg, nil
}

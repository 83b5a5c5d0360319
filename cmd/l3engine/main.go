package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"l3engine/pkg/capture"
	"l3engine/pkg/config"
	"l3engine/pkg/engine"
	"l3engine/pkg/link"
	"l3engine/pkg/mbuf"
	"l3engine/pkg/packet"
	"l3engine/pkg/proto"
	"l3engine/pkg/repl"
	"l3engine/pkg/util"
)

var (
	configFile string
	withRepl   bool
)

var rootCmd = &cobra.Command{
	Use:   "l3engine",
	Short: "Answer ARP and ICMP echo requests on a virtual Ethernet link",
	Long: `l3engine receives Ethernet frames tunnelled in UDP datagrams, answers ARP
requests (and optionally ICMP echo requests) for its local IPv4 address and
sends the replies back to the peer.

Examples:
  l3engine                          # defaults and L3ENGINE_* environment
  l3engine -c l3engine.yaml         # load a configuration file
  l3engine -c l3engine.yaml --repl  # also start the inspection console`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %s on %s, peer %s\n",
			cfg.Local.IP, cfg.Port.Listen, cfg.Port.Peer)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.Flags().BoolVar(&withRepl, "repl", false, "start the interactive console on stdin")
	rootCmd.AddCommand(validateCmd)
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := util.NewLogger(cfg.LogOptions())

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	listen, peer, poll, err := cfg.PortAddrs()
	if err != nil {
		return err
	}

	pool, err := mbuf.NewPool(cfg.Port.Name, cfg.Pool.Size, cfg.Pool.DataRoom)
	if err != nil {
		return errors.Wrap(err, "create pool")
	}
	port, err := link.OpenUDPPort(cfg.Port.Name, listen, peer, pool, poll)
	if err != nil {
		return err
	}
	logger.Info("port open", "name", cfg.Port.Name, "listen", port.LocalAddr(), "peer", peer)

	var opts []engine.Option
	if cfg.Capture.Enabled {
		tap, err := capture.Open(cfg.Capture.Path, cfg.Capture.Snaplen)
		if err != nil {
			port.Close()
			return err
		}
		defer tap.Close()
		opts = append(opts, engine.WithCapture(tap))
		logger.Info("capturing", "path", cfg.Capture.Path)
	}

	e := engine.New(port, pool, engineCfg, logger, opts...)
	if cfg.Engine.Trace {
		trace := proto.TraceHandler(logger.With("trace", cfg.Port.Name))
		for _, l := range []packet.Layer{packet.LayerIPv4, packet.LayerTCP, packet.LayerUDP, packet.LayerICMP} {
			e.Handle(l, trace)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if withRepl {
		go func() {
			repl.CreateREPL(e, os.Stdin, os.Stdout).StartREPL()
			cancel()
		}()
	}

	err = e.Run(ctx)
	if serr := e.Shutdown(); serr != nil && err == nil {
		err = serr
	}
	s := e.Stats()
	logger.Info("stopped", "rx", s.Rx, "tx", s.Tx, "arp_replies", s.ARPReplies, "dropped", s.Dropped)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

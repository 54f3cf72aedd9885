package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"

	"github.com/skycoin/busnet/internal/pathutil"
	"github.com/skycoin/busnet/pkg/node"
	"github.com/skycoin/busnet/pkg/phy/wsbus"
	"github.com/skycoin/busnet/pkg/routing"
)

const configEnv = "BUSNET_HUB_CONFIG"

var (
	log = logging.MustGetLogger("busnet-hub")

	addr      string
	mockNodes int
)

func init() {
	rootCmd.Flags().StringVarP(&addr, "addr", "a", "", "address to serve on, overrides the config")
	rootCmd.Flags().IntVar(&mockNodes, "mock-nodes", 0, "number of simulated nodes to attach, overrides the config")
}

var rootCmd = &cobra.Command{
	Use:   "busnet-hub [config-path]",
	Short: "Relays bus frames between busnet nodes over websockets",
	Run: func(cmd *cobra.Command, args []string) {
		config := DefaultConfig()
		if configPath, err := pathutil.FindConfigPath(args, 0, configEnv, pathutil.HubDefaults()); err == nil {
			if err := config.Parse(configPath); err != nil {
				log.WithError(err).Fatalln("failed to parse config file")
			}
		} else {
			log.Info("No config found, using defaults")
		}
		if cmd.Flags().Changed("addr") {
			config.HTTPAddr = addr
		}
		if cmd.Flags().Changed("mock-nodes") {
			config.MockNodes = mockNodes
		}
		if lvl, err := logging.LevelFromString(config.LogLevel); err == nil {
			logging.SetLevel(lvl)
		}

		hub := wsbus.NewHub(log)
		l, err := net.Listen("tcp", config.HTTPAddr)
		if err != nil {
			log.Fatalln("Failed to bind tcp port:", err)
		}
		srv := &http.Server{Handler: hub.Handler()}

		log.Infof("serving bus on 'ws://%s%s'", l.Addr(), wsbus.BusPath)
		go func() {
			if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
				log.Fatalln("Hub exited with error:", err)
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		nodes, err := startMockNodes(ctx, config.MockNodes, "ws://"+l.Addr().String()+wsbus.BusPath)
		if err != nil {
			log.Fatalln("Failed to start mock nodes:", err)
		}

		ch := make(chan os.Signal, 2)
		signal.Notify(ch, []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}...)
		<-ch

		for _, n := range nodes {
			if err := n.Close(); err != nil {
				log.WithError(err).Warn("Failed to close mock node")
			}
		}
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Failed to shut down HTTP server")
		}
		if err := hub.Close(); err != nil {
			log.WithError(err).Warn("Failed to close hub")
		}
		log.Println("Good bye!")
	},
}

// startMockNodes attaches n in-process nodes with addresses 1..n to the hub at url.
func startMockNodes(ctx context.Context, n int, url string) ([]*node.Node, error) {
	if n > int(routing.MaxAddr) {
		return nil, fmt.Errorf("at most %d mock nodes are supported", routing.MaxAddr)
	}

	nodes := make([]*node.Node, 0, n)
	for i := 1; i <= n; i++ {
		conf := node.DefaultConfig()
		conf.Node.Address = uint8(i)
		conf.Node.Phys = uint8(0xA0 + i)
		conf.Transport.HubURL = url
		conf.Interfaces = node.InterfaceConfig{}

		tr, err := conf.DialTransport(ctx, nil)
		if err != nil {
			return nodes, errors.Wrapf(err, "mock node %d", i)
		}
		mn, err := node.NewNode(conf, tr, nil)
		if err != nil {
			return nodes, errors.Wrapf(err, "mock node %d", i)
		}
		go func(i int) {
			if err := mn.Serve(ctx); err != nil && err != context.Canceled {
				log.WithError(err).Warnf("Mock node %d stopped", i)
			}
		}(i)
		nodes = append(nodes, mn)
		log.Infof("Mock node %d attached", i)
	}
	return nodes, nil
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

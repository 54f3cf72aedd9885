package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"log/syslog"
	"net/http"
	_ "net/http/pprof" // no_lint
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"

	"github.com/skycoin/busnet/internal/pathutil"
	"github.com/skycoin/busnet/pkg/node"
)

const configEnv = "BUSNET_CONFIG"

type runCfg struct {
	syslogAddr   string
	tag          string
	cfgFromStdin bool
	cfgTOML      bool
	profileMode  string
	port         string
	args         []string

	profileStop  func()
	logger       *logging.Logger
	masterLogger *logging.MasterLogger
	conf         *node.Config
	node         *node.Node
	cancel       context.CancelFunc
	done         chan error
}

var cfg *runCfg

var rootCmd = &cobra.Command{
	Use:   "busnet-node [config-path]",
	Short: "Node for busnet",
	Run: func(_ *cobra.Command, args []string) {
		cfg.args = args

		cfg.startProfiler().
			startLogger().
			readConfig().
			runNode().
			waitOsSignals().
			stopNode()
	},
	Version: node.Version,
}

func init() {
	cfg = &runCfg{}
	rootCmd.Flags().StringVarP(&cfg.syslogAddr, "syslog", "", "none", "syslog server address. E.g. localhost:514")
	rootCmd.Flags().StringVarP(&cfg.tag, "tag", "", "busnet", "logging tag")
	rootCmd.Flags().BoolVarP(&cfg.cfgFromStdin, "stdin", "i", false, "read config from STDIN")
	rootCmd.Flags().BoolVarP(&cfg.cfgTOML, "toml", "", false, "config read from STDIN is TOML")
	rootCmd.Flags().StringVarP(&cfg.profileMode, "profile", "p", "none", "enable profiling with pprof. Mode:  none or one of: [cpu, mem, mutex, block, trace, http]")
	rootCmd.Flags().StringVarP(&cfg.port, "port", "", "6060", "port for http-mode of pprof")
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func (cfg *runCfg) startProfiler() *runCfg {
	var option func(*profile.Profile)
	switch cfg.profileMode {
	case "none":
		cfg.profileStop = func() {}
		return cfg
	case "http":
		go func() {
			log.Println(http.ListenAndServe(fmt.Sprintf("localhost:%v", cfg.port), nil))
		}()
		cfg.profileStop = func() {}
		return cfg
	case "cpu":
		option = profile.CPUProfile
	case "mem":
		option = profile.MemProfile
	case "mutex":
		option = profile.MutexProfile
	case "block":
		option = profile.BlockProfile
	case "trace":
		option = profile.TraceProfile
	default:
		log.Fatalf("unknown profile mode %q", cfg.profileMode)
	}
	cfg.profileStop = profile.Start(profile.ProfilePath("./logs/"+cfg.tag), option).Stop
	return cfg
}

func (cfg *runCfg) startLogger() *runCfg {
	cfg.masterLogger = logging.NewMasterLogger()
	cfg.logger = cfg.masterLogger.PackageLogger(cfg.tag)

	if cfg.syslogAddr != "none" {
		hook, err := logrus_syslog.NewSyslogHook("udp", cfg.syslogAddr, syslog.LOG_INFO, cfg.tag)
		if err != nil {
			cfg.logger.Error("Unable to connect to syslog daemon:", err)
		} else {
			cfg.masterLogger.AddHook(hook)
			cfg.masterLogger.Out = ioutil.Discard
		}
	}
	return cfg
}

func (cfg *runCfg) readConfig() *runCfg {
	var (
		rdr    io.Reader
		isTOML = cfg.cfgTOML
	)
	if !cfg.cfgFromStdin {
		configPath, err := pathutil.FindConfigPath(cfg.args, 0, configEnv, pathutil.NodeDefaults())
		if err != nil {
			cfg.logger.Fatalf("Failed to find config: %s", err)
		}
		f, err := os.Open(configPath) // nolint: gosec
		if err != nil {
			cfg.logger.Fatalf("Failed to open config: %s", err)
		}
		defer f.Close() // nolint: errcheck
		rdr, isTOML = f, pathutil.IsTOML(configPath)
	} else {
		cfg.logger.Info("Reading config from STDIN")
		rdr = bufio.NewReader(os.Stdin)
	}

	conf, err := node.DecodeConfig(rdr, isTOML)
	if err != nil {
		cfg.logger.Fatalf("Failed to decode config: %s", err)
	}
	cfg.conf = conf
	return cfg
}

func (cfg *runCfg) runNode() *runCfg {
	ctx, cancel := context.WithCancel(context.Background())
	cfg.cancel = cancel

	tr, err := cfg.conf.DialTransport(ctx, nil)
	if err != nil {
		cfg.logger.Fatal("Failed to attach to bus: ", err)
	}

	n, err := node.NewNode(cfg.conf, tr, cfg.masterLogger)
	if err != nil {
		cfg.logger.Fatal("Failed to initialize node: ", err)
	}

	cfg.done = make(chan error, 1)
	go func() {
		cfg.done <- n.Start(ctx)
	}()

	cfg.node = n
	return cfg
}

func (cfg *runCfg) stopNode() *runCfg {
	defer cfg.profileStop()
	if err := cfg.node.Close(); err != nil {
		cfg.logger.Fatal("Failed to close node: ", err)
	}
	cfg.cancel()
	if err := <-cfg.done; err != nil && err != context.Canceled {
		cfg.logger.WithError(err).Warn("Node stopped with error")
	}
	return cfg
}

func (cfg *runCfg) waitOsSignals() *runCfg {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}...)
	select {
	case <-ch:
	case err := <-cfg.done:
		cfg.logger.Fatal("Node exited: ", err)
	}
	go func() {
		select {
		case <-time.After(time.Duration(cfg.conf.ShutdownTimeout)):
			cfg.logger.Fatal("Timeout reached: terminating")
		case s := <-ch:
			cfg.logger.Fatalf("Received signal %s: terminating", s)
		}
	}()
	return cfg
}

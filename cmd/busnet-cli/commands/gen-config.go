package commands

import (
	"fmt"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/skycoin/busnet/cmd/busnet-cli/internal"
	"github.com/skycoin/busnet/internal/pathutil"
	"github.com/skycoin/busnet/pkg/node"
)

var (
	output        string
	replace       bool
	configLocType = pathutil.WorkingDirLoc
	genAddr       string
	genPhys       uint8
	hubURL        string
	boltTable     bool
)

func init() {
	rootCmd.AddCommand(genConfigCmd)
	genConfigCmd.Flags().StringVarP(&output, "output", "o", "", "path of output config file, .toml for TOML. Uses default of 'type' flag if unspecified.")
	genConfigCmd.Flags().BoolVarP(&replace, "replace", "r", false, "whether to allow rewrite of a file that already exists.")
	genConfigCmd.Flags().VarP(&configLocType, "type", "m", fmt.Sprintf("config generation mode. Valid values: %v", pathutil.AllConfigLocationTypes()))
	genConfigCmd.Flags().StringVarP(&genAddr, "address", "a", "1", "logical address of the node, 0..15")
	genConfigCmd.Flags().Uint8Var(&genPhys, "phys", 0, "hardware address of the node. Derived from the logical address if zero.")
	genConfigCmd.Flags().StringVar(&hubURL, "hub", "", "websocket bus hub URL")
	genConfigCmd.Flags().BoolVar(&boltTable, "boltdb", false, "persist the routing table in a bbolt database")
}

var genConfigCmd = &cobra.Command{
	Use:   "gen-config",
	Short: "Generates a node config file",
	PreRun: func(_ *cobra.Command, _ []string) {
		if output == "" {
			output, _ = pathutil.NodeDefaults().Get(configLocType)
			log.Infof("No 'output' set; using default path: %s", output)
		}
		var err error
		if output, err = filepath.Abs(output); err != nil {
			log.WithError(err).Fatalln("invalid output provided")
		}
	},
	Run: func(_ *cobra.Command, _ []string) {
		var conf *node.Config
		switch configLocType {
		case pathutil.WorkingDirLoc:
			conf = defaultConfig()
		case pathutil.HomeLoc:
			conf = homeConfig()
		case pathutil.LocalLoc:
			conf = localConfig()
		default:
			log.Fatalln("invalid config type:", configLocType)
		}
		internal.Catch(conf.Validate(), "generated config is invalid:")
		internal.Catch(pathutil.WriteConfig(conf, output, replace))
	},
}

func homeConfig() *node.Config {
	c := defaultConfig()
	home, err := homedir.Dir()
	internal.Catch(err, "failed to find home directory:")
	if c.Routing.Table.Type == node.BoltDBTable {
		c.Routing.Table.Location = filepath.Join(home, ".busnet", "routing.db")
	}
	return c
}

func localConfig() *node.Config {
	c := defaultConfig()
	if c.Routing.Table.Type == node.BoltDBTable {
		c.Routing.Table.Location = "/usr/local/busnet/routing.db"
	}
	return c
}

func defaultConfig() *node.Config {
	conf := node.DefaultConfig()

	addr := internal.ParseAddr("address", genAddr)
	conf.Node.Address = uint8(addr)
	conf.Node.Phys = genPhys
	if conf.Node.Phys == 0 {
		conf.Node.Phys = 0xA0 | uint8(addr)
	}
	if hubURL != "" {
		conf.Transport.HubURL = hubURL
	}
	if boltTable {
		conf.Routing.Table.Type = node.BoltDBTable
		conf.Routing.Table.Location = "./busnet/routing.db"
	}
	return conf
}

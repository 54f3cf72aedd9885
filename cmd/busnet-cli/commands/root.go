package commands

import (
	"net/rpc"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"

	"github.com/skycoin/busnet/pkg/node"
)

var log = logging.MustGetLogger("busnet-cli")

var rpcAddr string

var rootCmd = &cobra.Command{
	Use:   "busnet-cli",
	Short: "Command Line Interface for busnet",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rpcAddr, "rpc", "", "localhost:3435", "RPC server address")
}

func rpcClient() node.RPCClient {
	client, err := rpc.Dial("tcp", rpcAddr)
	if err != nil {
		log.Fatal("RPC connection failed:", err)
	}
	return node.NewRPCClient(client, node.RPCPrefix)
}

// Execute executes root CLI command.
func Execute() {
	rootCmd.Execute() //nolint:errcheck
}

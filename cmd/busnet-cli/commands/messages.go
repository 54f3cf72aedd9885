package commands

import (
	"encoding/hex"
	"io"
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/skycoin/busnet/cmd/busnet-cli/internal"
	"github.com/skycoin/busnet/pkg/node"
)

var (
	hexPayload bool
	drain      bool
)

func init() {
	rootCmd.AddCommand(
		sendCmd,
		messagesCmd,
		pingCmd,
		announceCmd,
	)
	sendCmd.Flags().BoolVarP(&hexPayload, "hex", "x", false, "payload is hex encoded")
	messagesCmd.Flags().BoolVarP(&drain, "drain", "d", false, "remove listed messages from the node")
}

var sendCmd = &cobra.Command{
	Use:   "send <dest> <payload>",
	Short: "Sends a payload to the node with the given logical address",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		dest := internal.ParseAddr("dest", args[0])
		payload := []byte(args[1])
		if hexPayload {
			var err error
			payload, err = hex.DecodeString(args[1])
			internal.Catch(err, "failed to parse <payload>:")
		}
		internal.Catch(rpcClient().Send(dest, payload))
		pterm.Success.Printfln("Sent %d bytes to node %s", len(payload), dest)
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Lists messages received by the local node",
	Run: func(_ *cobra.Command, _ []string) {
		msgs, err := rpcClient().Messages(drain)
		internal.Catch(err)
		internal.Catch(printMessages(os.Stdout, msgs))
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Broadcasts a ping request to discover neighbours",
	Run: func(_ *cobra.Command, _ []string) {
		internal.Catch(rpcClient().Ping())
		pterm.Success.Println("OK")
	},
}

var announceCmd = &cobra.Command{
	Use:   "announce",
	Short: "Advertises the local node's links to its neighbours",
	Run: func(_ *cobra.Command, _ []string) {
		internal.Catch(rpcClient().Announce())
		pterm.Success.Println("OK")
	},
}

func printMessages(w io.Writer, msgs []node.Message) error {
	data := pterm.TableData{{"received", "src", "size", "payload"}}
	for _, m := range msgs {
		data = append(data, []string{
			m.Received.Format("15:04:05.000"),
			m.Src.String(),
			strconv.Itoa(len(m.Payload)),
			printable(m.Payload),
		})
	}
	return render(w, data)
}

// printable returns p as text if every byte is printable ASCII, and as hex otherwise.
func printable(p []byte) string {
	for _, b := range p {
		if b < 0x20 || b > 0x7e {
			return "0x" + hex.EncodeToString(p)
		}
	}
	return string(p)
}

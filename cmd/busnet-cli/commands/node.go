package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/skycoin/busnet/cmd/busnet-cli/internal"
	"github.com/skycoin/busnet/pkg/node"
	"github.com/skycoin/busnet/pkg/routing"
)

func init() {
	rootCmd.AddCommand(
		statusCmd,
		routesCmd,
		nodesCmd,
	)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Obtains a summary of the local node",
	Run: func(_ *cobra.Command, _ []string) {
		summary, err := rpcClient().Summary()
		internal.Catch(err)
		internal.Catch(printSummary(os.Stdout, summary))
	},
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Lists the local node's next hops",
	Run: func(_ *cobra.Command, _ []string) {
		routes, err := rpcClient().Routes()
		internal.Catch(err)
		internal.Catch(printRoutes(os.Stdout, routes))
	},
}

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Lists the link state the local node holds for remote nodes",
	Run: func(_ *cobra.Command, _ []string) {
		nodes, err := rpcClient().Nodes()
		internal.Catch(err)
		internal.Catch(printNodes(os.Stdout, nodes))
	},
}

func render(w io.Writer, data pterm.TableData) error {
	s, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, s)
	return err
}

func printSummary(w io.Writer, s *node.Summary) error {
	online := make([]string, len(s.Online))
	for i, a := range s.Online {
		online[i] = a.String()
	}
	data := pterm.TableData{
		{"field", "value"},
		{"version", s.Version},
		{"address", s.Address.String()},
		{"phys", s.Phys.String()},
		{"checksum", s.ChecksumMode.String()},
		{"transport", s.Transport},
		{"uptime", (time.Duration(s.Uptime) * time.Second).String()},
		{"online", strings.Join(online, ",")},
		{"routes", strconv.Itoa(s.RoutesCount)},
		{"pending messages", strconv.Itoa(s.Pending)},
	}
	if err := render(w, data); err != nil {
		return err
	}
	if len(s.Neighbours) == 0 {
		return nil
	}

	nbs := pterm.TableData{{"neighbour", "phys", "ttl"}}
	for _, nb := range s.Neighbours {
		nbs = append(nbs, []string{nb.Address.String(), nb.Phys.String(), strconv.Itoa(nb.TTL)})
	}
	return render(w, nbs)
}

func printRoutes(w io.Writer, routes []routing.Route) error {
	data := pterm.TableData{{"dest", "next hop"}}
	for _, r := range routes {
		data = append(data, []string{r.Dest.String(), r.NextHop.String()})
	}
	return render(w, data)
}

func printNodes(w io.Writer, nodes []routing.NodeState) error {
	data := pterm.TableData{{"node", "seq", "ttl", "online", "linked"}}
	for _, n := range nodes {
		linked := make([]string, len(n.Linked))
		for i, a := range n.Linked {
			linked[i] = a.String()
		}
		data = append(data, []string{
			n.Address.String(),
			strconv.Itoa(int(n.Seq)),
			strconv.Itoa(n.TTL),
			strconv.FormatBool(n.Online),
			strings.Join(linked, ","),
		})
	}
	return render(w, data)
}

/*
busnet node
*/
package main

import "github.com/skycoin/busnet/cmd/busnet-node/commands"

func main() {
	commands.Execute()
}

/*
CLI for busnet node
*/
package main

import "github.com/skycoin/busnet/cmd/busnet-cli/commands"

func main() {
	commands.Execute()
}

/*
websocket bus hub for busnet nodes
*/
package main

import "github.com/skycoin/busnet/cmd/busnet-hub/commands"

func main() {
	commands.Execute()
}

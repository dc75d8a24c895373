// Command sendiectl is the CLI client for the sendied signaling daemon.
package main

import "github.com/johnkord/sendie/cmd/sendiectl/commands"

func main() {
	commands.Execute()
}

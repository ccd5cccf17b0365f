// Command chatsync is a terminal client for a streaming chat backend.
package main

import "github.com/diogo/chatsync/internal/commands"

func main() {
	commands.Execute()
}

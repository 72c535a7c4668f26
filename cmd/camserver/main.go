package main

import "github.com/bryanchriswhite/camserver/cmd/camserver/commands"

func main() {
	commands.Execute()
}

package main

import "github.com/bryanchriswhite/wintracker/cmd/wintracker/commands"

func main() {
	commands.Execute()
}

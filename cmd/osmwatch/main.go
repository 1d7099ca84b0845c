package main

import (
	"github.com/osmwatch/osmwatch/cmd"
)

func main() {
	cmd.Main(cmd.PrintCmds)
}

package main

import (
	"os"

	"github.com/ThomasCrouzet/svcrunner/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

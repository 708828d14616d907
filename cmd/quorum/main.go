package main

import (
	"os"

	"github.com/dshills/quorum/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}

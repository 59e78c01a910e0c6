// Package main is the entry point for the turbo CLI.
package main

import (
	"os"

	"github.com/AlexRogalskiy/turborepo/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}

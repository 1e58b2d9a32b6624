// Package main is the entry point for the mallard CLI binary.
package main

import (
	"os"

	cli "github.com/mallard-db/mallard/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}

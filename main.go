package main

import (
	"os"

	"github.com/felixgeelhaar/dcov/internal/cli"
)

func main() {
	code := cli.Run(os.Args, os.Stdout, os.Stderr, cli.BuildPipeline)
	os.Exit(code)
}

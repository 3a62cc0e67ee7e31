package main

import (
	"os"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/cli"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/logger"
)

var version = "dev"

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(); err != nil {
		logger.Error("CLI", err.Error())
		os.Exit(1)
	}
}

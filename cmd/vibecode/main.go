package main

import (
	"os"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/interface/cli"
)

func main() {
	if err := cli.NewRoot().Execute(); err != nil {
		os.Exit(1)
	}
}

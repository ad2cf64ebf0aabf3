package main

import (
	"os"

	"github.com/engramdb/engram/cmd/engram"
)

func main() {
	if err := engram.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/oremus-labs/ol-bot-console/internal/botctl"
)

func main() {
	if err := botctl.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/danmuck/qrgate/cmd/qrgate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "qrgate: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/lv2jack/host/cmd"
	"github.com/lv2jack/host/internal/conf"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lv2jack: loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lv2jack: %v\n", err)
		os.Exit(1)
	}
}

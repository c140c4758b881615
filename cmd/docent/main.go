package main

import (
	"fmt"
	"os"

	"github.com/tillberg/autorestart"

	"github.com/soyeahso/docent/internal/cli"
)

func main() {
	go autorestart.RestartOnChange()

	// The root command silences cobra's own error printing, so this is
	// the one place errors reach the terminal.
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "docent:", err)
		os.Exit(1)
	}
}

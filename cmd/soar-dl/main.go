package main

import (
	"os"

	"github.com/pkgforge/soar-dl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

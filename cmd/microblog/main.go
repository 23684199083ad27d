// Package main provides the entry point for the microblog CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/microblog/cmd/microblog/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Feedhue - colour palettes from social media feeds
//
// Feedhue downloads the images an account posted over a date range and
// summarises them as a small palette of dominant colours.
//
// Copyright (c) 2025 John Mylchreest
// Licensed under the MIT License
package main

import (
	"os"

	"github.com/jmylchreest/feedhue/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main is the single-binary entrypoint for gitquest.
package main

import "github.com/gitquest/gitquest/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}

// Package main is the entry point for the kurisu CLI.
package main

import "github.com/quilldev/kurisu/internal/cli"

func main() {
	cli.Execute()
}

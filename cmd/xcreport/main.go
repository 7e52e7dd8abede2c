package main

import "github.com/xcbolt/xcreport/internal/cli"

func main() {
	cli.Execute()
}

package main

import "arcane-scribe/internal/cli"

func main() {
	cli.Execute()
}

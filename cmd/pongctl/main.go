package main

import "github.com/mcoot/pongladder/internal/cli"

func main() {
	cli.Execute()
}

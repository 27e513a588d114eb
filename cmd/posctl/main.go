package main

import "pos-edge/internal/cli"

func main() {
	cli.Execute()
}

package main

import "realmsync.io/internal/cli"

func main() {
	cli.Execute()
}

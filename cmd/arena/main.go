package main

import "github.com/dyike/ArenaGo/internal/cli"

func main() {
	cli.Run()
}

package main

import (
	"ticket-reservation/cmd"

	_ "go.uber.org/automaxprocs"
)

func main() {
	cmd.Start()
}

package main

import "github.com/crclabs/backingd/internal/cli"

func main() {
	cli.Execute()
}

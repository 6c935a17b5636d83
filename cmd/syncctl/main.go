package main

import "example.com/stravasync/internal/cli"

func main() {
	cli.Execute()
}

package main

import "example.com/abtest/internal/cli"

func main() {
	cli.Execute()
}

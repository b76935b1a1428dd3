package main

import "github.com/walletreel/walletreel/cli"

func main() {
	cli.Execute()
}

package main

import "portwatch/cli"

func main() {
	cli.Execute()
}

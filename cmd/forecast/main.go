package main

import "github.com/mchmarny/forecast/pkg/cli"

func main() {
	cli.Execute()
}

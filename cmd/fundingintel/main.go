package main

import (
	"funding-intel/internal/cli"
)

func main() {
	cli.Execute()
}

package main

import (
	"funding-gate/internal/cli"
)

func main() {
	cli.Execute()
}

package main

import "casebeam/internal/cli"

func main() {
	cli.Execute()
}

package main

import "productrag/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/mvp-joe/stubgen/internal/cli"

func main() {
	cli.Execute()
}

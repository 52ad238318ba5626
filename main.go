package main

import "github.com/gregriff/parley/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/ronakgh97/r-share/cmd/relay/cmd"

func main() {
	cmd.Execute()
}

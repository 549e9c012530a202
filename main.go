package main

import "github.com/mpapenbr/simracecenter-agent-go/cmd"

func main() {
	cmd.Execute()
}

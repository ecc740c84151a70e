package main

import "github.com/mipt-srf/probe-station/cmd/probe/cmd"

func main() {
	cmd.Execute()
}

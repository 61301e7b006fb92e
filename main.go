package main

import "github.com/harwoodlabs/meterbridge/cmd"

func main() {
	cmd.Execute()
}

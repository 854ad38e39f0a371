package main

import "synapse/cmd"

func main() {
	cmd.Execute()
}

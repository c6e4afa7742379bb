package main

import "github.com/driftwhale/driftwhale/cmd"

func main() {
	cmd.Execute()
}

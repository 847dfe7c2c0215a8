package main

import "xtplay/cmd"

func main() {
	cmd.Execute()
}

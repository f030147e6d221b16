package main

import "github.com/KaramelBytes/riskloom-cli/cmd"

func main() {
	cmd.Execute()
}

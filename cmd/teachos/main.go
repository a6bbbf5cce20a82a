package main

import "teachos/cmd/teachos/cmd"

func main() {
	cmd.Execute()
}

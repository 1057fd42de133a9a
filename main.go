package main

import "github.com/rivion/rivion/cmd"

func main() {
	cmd.Execute()
}

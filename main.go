package main

import "github.com/Tiliavir/billy/cmd"

func main() {
	cmd.Execute()
}

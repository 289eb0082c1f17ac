package main

import "github.com/eejs2py/eejs2py/cmd"

var version = "v0.1.0"

func main() {
	cmd.Execute(version)
}

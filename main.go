package main

import (
	"pollwatch/cmd"
)

func main() {
	cmd.Execute()
}

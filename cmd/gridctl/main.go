package main

import (
	"github.com/griddist/core/cmd/gridctl/cmd"
)

func main() {
	cmd.Execute()
}

package main

import "github.com/LENAX/module-engine/pkg/cli/cmd"

func main() {
	cmd.Execute()
}

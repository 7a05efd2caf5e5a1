package main

import "github.com/apercallc/ai-terminal/cmd"

func main() {
	cmd.Execute()
}

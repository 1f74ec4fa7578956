package main

import "github.com/Rubentxu/code-context-graph/cmd"

func main() {
	cmd.Execute()
}

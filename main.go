package main

import "github.com/yearn/stack-router/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/chatplatform/relay/cmd"

func main() {
	cmd.Execute()
}

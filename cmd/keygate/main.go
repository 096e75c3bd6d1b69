package main

import "github.com/tgrimes/keygate/cmd/keygate/cmd"

func main() {
	cmd.Execute()
}

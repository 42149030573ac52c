package main

import "github.com/PyGeek03/flox/cmd"

func main() {
	cmd.Execute()
}

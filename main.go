package main

import "github.com/papapumpkin/treasury/cmd"

func main() {
	cmd.Execute()
}

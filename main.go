package main

import "github.com/codegenie/apiserver/cmd"

func main() {
	cmd.Execute()
}

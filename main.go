package main

import "github.com/nextlevelbuilder/crosschat/cmd"

func main() {
	cmd.Execute()
}

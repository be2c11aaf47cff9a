package main

import "github.com/concord-chat/teamchat/cmd/teamchat/cmd"

func main() {
	cmd.Execute()
}

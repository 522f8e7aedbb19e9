package main

import "github.com/klytics/rosterbot/cmd"

func main() {
	cmd.Execute()
}

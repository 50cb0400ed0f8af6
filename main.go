package main

import "github.com/KaramelBytes/mvlens-cli/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/fakeyudi/tandem/cmd"

func main() {
	cmd.Execute()
}

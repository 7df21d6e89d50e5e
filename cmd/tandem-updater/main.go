package main

import "github.com/oshokin/tandem-updater/cmd/tandem-updater/cmd"

func main() {
	cmd.Execute()
}

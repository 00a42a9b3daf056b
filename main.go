// The main package for the trackwebhookd executable.
package main

import (
	"github.com/wina-futureobjects/track-futura-new-sub002/cmd"
)

func main() {
	cmd.Execute()
}

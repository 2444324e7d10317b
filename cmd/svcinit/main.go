// Command svcinit boots the services described in descriptor directories
// in dependency order.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(&rootFlags{}).Execute(); err != nil {
		os.Exit(1)
	}
}

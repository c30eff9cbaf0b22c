// Command ctxctl renders and checks config context documents offline,
// without a server or database.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

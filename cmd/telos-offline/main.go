// Command telos-offline runs the Telos offline subsystem: the local cache
// gateway, the sync daemon, and the store maintenance commands.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

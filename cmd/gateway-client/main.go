// Command gateway-client is a Cobra-based CLI driving the Client
// Session Manager (C8) package interactively, and doubles as the
// executable reference client used to exercise the gateway end to end.
package main

import (
	"fmt"
	"os"

	"github.com/telnet2/sessiongw/cmd/gateway-client/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

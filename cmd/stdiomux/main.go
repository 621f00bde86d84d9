// stdiomux runs a set of stdio JSON-RPC servers and multiplexes their traffic.
package main

import (
	"os"

	"github.com/wagiedev/stdiomux/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

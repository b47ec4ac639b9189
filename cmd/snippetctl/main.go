// Command snippetctl searches and edits a running snippet catalog from the
// terminal.
//
//	snippetctl search "react hooks" --tag react
//	snippetctl history clear
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sakif/snippet-catalog/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

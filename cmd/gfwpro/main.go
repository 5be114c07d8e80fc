package main

// Drive a GFW Pro analysis from the command line:
//   go run ./cmd/gfwpro run --csv sample_data/example.csv --analysis GHG

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gfwpro-workflow/cmd/gfwpro/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(commands.ExitCode(err))
}

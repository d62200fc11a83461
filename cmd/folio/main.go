// Command folio is the operator CLI. It opens the same databases as the
// server and runs one operation against them.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "")
	}

	decimal.MarshalJSONWithoutQuotes = true

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

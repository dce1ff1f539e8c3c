package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

type options struct {
	configPath string
	group      string
}

// parseFlags reads the audience flags. An empty group keeps the one from
// the config file or GROUP.
func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("audience", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVarP(&opts.configPath, "config", "c", os.Getenv("CONFIG_PATH"), "YAML config file")
	flagSet.StringVarP(&opts.group, "group", "g", "", "group to join (overrides GROUP)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(out, "Usage: audience [flags]\n\n%s", flagSet.FlagUsages())
		return opts, pflag.ErrHelp
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, nil
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

type options struct {
	configPath string
	question   string
}

// parseFlags reads the presenter flags. Defaults come from CONFIG_PATH and
// QUESTION. On -h it writes usage to out and returns pflag.ErrHelp.
func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("presenter", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVarP(&opts.configPath, "config", "c", os.Getenv("CONFIG_PATH"), "YAML config file")
	flagSet.StringVarP(&opts.question, "question", "q", os.Getenv("QUESTION"), "question as URL query, e.g. interaction=brainstorming&question=Pets")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(out, "Usage: presenter [flags]\n\n%s", flagSet.FlagUsages())
		return opts, pflag.ErrHelp
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, nil
}

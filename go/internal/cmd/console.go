package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/livequestion/go/internal/brainstorm"
	"github.com/mcdev12/livequestion/go/internal/interaction"
)

var errQuit = errors.New("quit")

// presenterCommands is the part of presenter.Service the console drives.
type presenterCommands interface {
	Bootstrap(ctx context.Context, q interaction.QuestionCreated) (*brainstorm.Controller, error)
	StartBrainstorming(seconds int) error
	StopBrainstorming() error
	StartVoting(singleChoice bool, seconds int) error
	StopVoting() error
	HideIdea(index int) error
	View() (brainstorm.View, error)
}

const consoleHelp = `commands:
  new <question>          create a brainstorming question
  start [seconds]         open for ideas
  stop                    close brainstorming
  vote single|multi [s]   start voting
  endvote                 stop voting
  hide N                  hide idea N (from 1)
  status                  show the board
  quit`

// runConsole executes one command per line until quit, EOF or ctx ends.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, p presenterCommands) error {
	fmt.Fprintln(out, consoleHelp)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		err := runCommand(ctx, out, p, strings.Fields(scanner.Text()))
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func runCommand(ctx context.Context, out io.Writer, p presenterCommands, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	args := fields[1:]

	switch fields[0] {
	case "new":
		if len(args) == 0 {
			return errors.New("usage: new <question>")
		}
		q := interaction.QuestionCreated{Header: interaction.Header{
			Interaction: interaction.KindBrainstorming,
			Question:    strings.Join(args, " "),
			QuestionID:  uuid.NewString(),
		}}
		if _, err := p.Bootstrap(ctx, q); err != nil {
			return err
		}
		fmt.Fprintf(out, "question %s created\n", q.QuestionID)
		return nil
	case "start":
		seconds, err := optionalSeconds(args, 0)
		if err != nil {
			return err
		}
		return p.StartBrainstorming(seconds)
	case "stop":
		return p.StopBrainstorming()
	case "vote":
		if len(args) == 0 || (args[0] != "single" && args[0] != "multi") {
			return errors.New("usage: vote single|multi [seconds]")
		}
		seconds, err := optionalSeconds(args, 1)
		if err != nil {
			return err
		}
		return p.StartVoting(args[0] == "single", seconds)
	case "endvote":
		return p.StopVoting()
	case "hide":
		if len(args) != 1 {
			return errors.New("usage: hide N")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid idea number %q", args[0])
		}
		return p.HideIdea(n - 1)
	case "status":
		v, err := p.View()
		if err != nil {
			return err
		}
		printView(out, v)
		return nil
	case "help":
		fmt.Fprintln(out, consoleHelp)
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func optionalSeconds(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, nil
	}
	seconds, err := strconv.Atoi(args[i])
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("invalid seconds %q", args[i])
	}
	return seconds, nil
}

func printView(out io.Writer, v brainstorm.View) {
	fmt.Fprintf(out, "%s [%s]", v.Question, v.Stage)
	if v.Timer != nil {
		fmt.Fprintf(out, " %ds left", *v.Timer)
	}
	fmt.Fprintln(out)

	for i, idea := range v.Ideas {
		if idea.Hidden() {
			fmt.Fprintf(out, "  %d. (hidden)\n", i+1)
			continue
		}
		fmt.Fprintf(out, "  %d. %s (%s)\n", i+1, idea.Text, idea.Color)
	}
	if len(v.VotingIdeas) > 0 {
		fmt.Fprintln(out, "votes:")
		for i, text := range v.VotingIdeas {
			fmt.Fprintf(out, "  %-20s %d\n", text, v.Tally[i])
		}
	}
}

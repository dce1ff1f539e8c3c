package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mcdev12/livequestion/go/internal/brainstorm"
)

var errQuit = errors.New("quit")

type audienceCommands interface {
	SubmitIdea(text, color string) error
	SubmitVote(vote []int) error
}

const consoleHelp = `commands:
  idea <color> <text>     submit an idea
  vote 1,0,...            vote, one entry per idea
  quit`

func runConsole(ctx context.Context, in io.Reader, out io.Writer, a audienceCommands) error {
	fmt.Fprintln(out, consoleHelp)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		err := runCommand(a, strings.Fields(scanner.Text()))
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func runCommand(a audienceCommands, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "idea":
		if len(fields) < 3 {
			return errors.New("usage: idea <color> <text>")
		}
		return a.SubmitIdea(strings.Join(fields[2:], " "), fields[1])
	case "vote":
		if len(fields) != 2 {
			return errors.New("usage: vote 1,0,...")
		}
		vote, err := parseVote(fields[1])
		if err != nil {
			return err
		}
		return a.SubmitVote(vote)
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func parseVote(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	vote := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid vote entry %q", p)
		}
		vote[i] = n
	}
	return vote, nil
}

// stagePrinter prints the question whenever its stage changes. It runs on
// the participant's loop.
type stagePrinter struct {
	out        io.Writer
	questionID string
	stage      brainstorm.Stage
}

func (p *stagePrinter) print(v brainstorm.ParticipantView) {
	if v.QuestionID == p.questionID && v.Stage == p.stage {
		return
	}
	p.questionID, p.stage = v.QuestionID, v.Stage

	switch v.Stage {
	case brainstorm.StageInitial:
		fmt.Fprintf(p.out, "question: %s (waiting for the presenter)\n", v.Question)
	case brainstorm.StageBrainstorming:
		fmt.Fprintf(p.out, "question: %s, send your ideas", v.Question)
		if v.Timer != nil {
			fmt.Fprintf(p.out, " (%ds)", *v.Timer)
		}
		fmt.Fprintln(p.out)
	case brainstorm.StageAfterBrainstorming:
		fmt.Fprintln(p.out, "brainstorming closed")
	case brainstorm.StageVoting:
		mode := "any number of ideas"
		if v.SingleChoice {
			mode = "exactly one idea"
		}
		fmt.Fprintf(p.out, "voting on %s, pick %s:\n", v.Question, mode)
		for i, idea := range v.Ideas {
			fmt.Fprintf(p.out, "  %d. %s\n", i+1, idea)
		}
	}
}

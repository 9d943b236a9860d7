package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"
)

func diagnoseCommand() *cli.Command {
	var cfg config

	var flags []cli.Flag
	flags = append(flags, githubFlags(&cfg)...)
	flags = append(flags, qdrantFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:      "diagnose",
		Usage:     "Diagnose an issue against recently merged pull requests",
		ArgsUsage: "[issue description]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.close()

			issue := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if issue == "" {
				input, err := readIssue()
				if err != nil {
					return err
				}
				issue = input
			}
			if issue == "" {
				return goerr.New("issue description is required")
			}

			finder, err := cfg.newFinder(ctx)
			if err != nil {
				return err
			}
			agent, err := cfg.newAgent(ctx, finder)
			if err != nil {
				return err
			}

			stop := startSpinner("diagnosing...")
			diag, err := agent.Run(ctx, issue)
			stop()
			if err != nil {
				return goerr.Wrap(err, "diagnosis failed")
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", diag.Text)
			fmt.Fprintf(c.Root().Writer, "\nSession: %s (%s, %d iterations)\n", diag.SessionID, diag.Status, diag.Iterations)
			if diag.Status == model.SessionStatusInconclusive {
				fmt.Fprintf(c.Root().Writer, "Try again with a larger --max-iterations or a more specific description\n")
			}
			return nil
		},
	}
}

// readIssue prompts for a multi-line issue description, ended by an empty line or EOF.
func readIssue() (string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "",
		Stdout:          os.Stderr,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to initialize readline")
	}
	defer rl.Close()

	fmt.Fprintln(os.Stderr, "Describe the issue (finish with an empty line):")

	var lines []string
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			return "", goerr.New("interrupted")
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", goerr.Wrap(err, "failed to read issue description")
		}
		if strings.TrimSpace(line) == "" {
			if len(lines) == 0 {
				continue
			}
			break
		}
		lines = append(lines, line)
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// startSpinner shows a spinner on stderr when it is a terminal. The returned func stops it.
func startSpinner(message string) func() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	s.Start()
	return s.Stop
}

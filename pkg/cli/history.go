package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
	"gopkg.in/yaml.v3"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect persisted diagnosis sessions",
		Commands: []*cli.Command{
			historyListCommand(),
			historyShowCommand(),
		},
	}
}

func historyListCommand() *cli.Command {
	var (
		cfg    config
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Number of sessions to skip",
			Value:       0,
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of sessions to display",
			Value:       20,
			Destination: &limit,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List diagnosis sessions, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.close()

			store, err := cfg.newSessionStore(ctx)
			if err != nil {
				return err
			}

			sessions, err := store.List(ctx, int(offset), int(limit))
			if err != nil {
				return err
			}

			if len(sessions) == 0 {
				fmt.Fprintf(c.Root().Writer, "No sessions found\n")
				return nil
			}

			for _, s := range sessions {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%d\t%s\t%s\n",
					s.ID,
					s.Status,
					s.Iterations,
					s.CreatedAt.Format("2006-01-02 15:04:05"),
					firstLine(s.Issue, 60),
				)
			}
			return nil
		},
	}
}

func historyShowCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "show",
		Usage:     "Print a session transcript as YAML",
		ArgsUsage: "<session-id>",
		Flags:     storeFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.close()

			if c.Args().Len() != 1 {
				return goerr.New("session ID is required")
			}
			id := model.SessionID(c.Args().First())

			store, err := cfg.newSessionStore(ctx)
			if err != nil {
				return err
			}

			session, err := store.Load(ctx, id)
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(c.Root().Writer)
			enc.SetIndent(2)
			if err := enc.Encode(newTranscript(session)); err != nil {
				return goerr.Wrap(err, "failed to encode transcript", goerr.V("session_id", id))
			}
			return enc.Close()
		},
	}
}

type transcript struct {
	Session *model.Session `yaml:"session"`
	Turns   []*turn        `yaml:"turns"`
}

type turn struct {
	Role     string         `yaml:"role"`
	Text     string         `yaml:"text,omitempty"`
	Call     *toolCall      `yaml:"call,omitempty"`
	Response map[string]any `yaml:"response,omitempty"`
}

type toolCall struct {
	Name string         `yaml:"name"`
	Args map[string]any `yaml:"args,omitempty"`
}

// newTranscript flattens contents into one turn per part, dropping model thoughts.
func newTranscript(session *model.Session) *transcript {
	t := &transcript{Session: session}
	for _, content := range session.Contents {
		for _, part := range content.Parts {
			if part.Thought {
				continue
			}
			if tr := partToTurn(content.Role, part); tr != nil {
				t.Turns = append(t.Turns, tr)
			}
		}
	}
	return t
}

func partToTurn(role string, part *genai.Part) *turn {
	switch {
	case part.FunctionCall != nil:
		return &turn{Role: role, Call: &toolCall{Name: part.FunctionCall.Name, Args: part.FunctionCall.Args}}
	case part.FunctionResponse != nil:
		return &turn{Role: role, Call: &toolCall{Name: part.FunctionResponse.Name}, Response: part.FunctionResponse.Response}
	case part.Text != "":
		return &turn{Role: role, Text: part.Text}
	default:
		return nil
	}
}

func firstLine(s string, n int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return s
}

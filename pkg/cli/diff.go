package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/usecase/change"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func diffCommand() *cli.Command {
	var (
		cfg config
		raw bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "raw",
			Usage:       "Print the unified diff without line numbers",
			Destination: &raw,
		},
	}
	flags = append(flags, githubFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:      "diff",
		Usage:     "Print pull request diffs annotated with line numbers, as the judge sees them",
		ArgsUsage: "<pr-number> [pr-number...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.close()

			ids, err := parseChangeIDs(c.Args().Slice())
			if err != nil {
				return err
			}

			gh, err := cfg.newGitHub()
			if err != nil {
				return err
			}

			fetcher := change.NewDiffFetcher(gh, change.WithConcurrency(int(cfg.diffConcurrency)))
			diffs, err := fetcher.GetDiffs(ctx, cfg.owner, cfg.repo, ids)
			if err != nil {
				return err
			}

			for _, id := range ids {
				d, ok := diffs[id]
				if !ok {
					continue
				}
				text := d.Text
				if !raw {
					text = change.Annotate(text)
				}
				fmt.Fprintf(c.Root().Writer, "### #%d\n%s\n", id, text)
			}
			return nil
		},
	}
}

// parseChangeIDs accepts "102" or "#102" and drops duplicates, keeping the given order.
func parseChangeIDs(args []string) ([]model.ChangeID, error) {
	if len(args) == 0 {
		return nil, goerr.New("at least one pull request number is required")
	}

	seen := make(map[model.ChangeID]bool, len(args))
	ids := make([]model.ChangeID, 0, len(args))
	for _, arg := range args {
		id, err := model.ParseChangeID(arg)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

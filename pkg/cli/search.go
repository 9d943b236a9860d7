package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg      config
		useJudge bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "judge",
			Aliases:     []string{"j"},
			Usage:       "Fetch the diffs of the candidates and ask the model which one is relevant",
			Destination: &useJudge,
		},
	}
	flags = append(flags, githubFlags(&cfg)...)
	flags = append(flags, qdrantFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Search recently updated pull requests similar to an issue description",
		ArgsUsage: "<issue description>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.close()

			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return goerr.New("issue description is required")
			}

			if useJudge {
				finder, err := cfg.newFinder(ctx)
				if err != nil {
					return err
				}
				result, err := finder.Find(ctx, query)
				if err != nil {
					return err
				}
				printCandidates(c, result.Candidates)
				fmt.Fprintf(c.Root().Writer, "\n%s\n", result.Verdict)
				return nil
			}

			retriever, err := cfg.newRetriever(ctx)
			if err != nil {
				return err
			}
			results, err := retriever.Search(ctx, query, cfg.index, int(cfg.topK))
			if err != nil {
				return goerr.Wrap(err, "failed to search pull requests")
			}

			if len(results) == 0 {
				fmt.Fprintf(c.Root().Writer, "No pull request updated in the last %s matched\n", cfg.recencyWindow)
				return nil
			}
			printCandidates(c, results)
			return nil
		},
	}
}

func printCandidates(c *cli.Command, results []*model.SearchResult) {
	for i, r := range results {
		updated := time.Unix(r.Metadata.UpdatedAt, 0).Format("2006-01-02 15:04:05")
		fmt.Fprintf(c.Root().Writer, "%d. #%d (score %.3f)\n", i+1, r.ID, r.Score)
		fmt.Fprintf(c.Root().Writer, "   Title: %s\n", r.Metadata.Title)
		fmt.Fprintf(c.Root().Writer, "   Updated: %s\n", updated)
		fmt.Fprintf(c.Root().Writer, "   URL: %s\n", r.Metadata.URL)
	}
}

package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/culprit/pkg/usecase/change"
	"github.com/m-mizutani/culprit/pkg/usecase/index"
	"github.com/m-mizutani/culprit/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func ingestCommand() *cli.Command {
	var (
		cfg       config
		hoursAgo  int64
		policyDir string
		dryRun    bool
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "hours-ago",
			Usage:       "Collect pull requests updated within this many hours",
			Value:       36,
			Sources:     cli.EnvVars("CULPRIT_HOURS_AGO"),
			Destination: &hoursAgo,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego files deciding which pull requests are excluded (package ingest)",
			Sources:     cli.EnvVars("CULPRIT_POLICY_DIR"),
			Destination: &policyDir,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Print the collected pull requests without indexing them",
			Destination: &dryRun,
		},
	}
	flags = append(flags, githubFlags(&cfg)...)
	flags = append(flags, qdrantFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Collect recently merged pull requests and index them",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.close()
			logger := logging.From(ctx)

			if hoursAgo <= 0 {
				return goerr.New("--hours-ago must be positive", goerr.V("hours_ago", hoursAgo))
			}

			gh, err := cfg.newGitHub()
			if err != nil {
				return err
			}
			engine, err := cfg.newPolicy(ctx, policyDir)
			if err != nil {
				return err
			}

			collector := change.NewCollector(gh, change.WithPolicy(engine))
			records, err := collector.FetchRecentChanges(ctx, cfg.owner, cfg.repo, int(hoursAgo))
			if err != nil {
				return goerr.Wrap(err, "failed to collect pull requests")
			}
			logger.Info("collected pull requests", "count", len(records), "owner", cfg.owner, "repo", cfg.repo)

			if dryRun {
				for _, rec := range records {
					fmt.Fprintf(c.Root().Writer, "#%d\t%s\t%s\t%s\n",
						rec.ID, rec.UpdatedAt.Format("2006-01-02 15:04:05"), rec.Title, rec.URL)
				}
				return nil
			}

			embedder, err := cfg.newEmbedder(ctx)
			if err != nil {
				return err
			}
			vectorIndex, err := cfg.newQdrant()
			if err != nil {
				return err
			}
			indexer, err := index.NewIndexer(embedder, vectorIndex)
			if err != nil {
				return err
			}

			vectors, err := indexer.Embed(ctx, records)
			if err != nil {
				return goerr.Wrap(err, "failed to embed pull requests")
			}
			if err := indexer.Upsert(ctx, vectors, cfg.index); err != nil {
				return goerr.Wrap(err, "failed to index pull requests")
			}

			fmt.Fprintf(c.Root().Writer, "Indexed %d pull requests into %s\n", len(vectors), cfg.index)
			return nil
		},
	}
}

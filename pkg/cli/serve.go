package cli

import (
	"context"

	"github.com/m-mizutani/culprit/pkg/service/mcp"
	"github.com/m-mizutani/culprit/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var cfg config

	var flags []cli.Flag
	flags = append(flags, githubFlags(&cfg)...)
	flags = append(flags, qdrantFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve find_relevant_diffs and diagnose as MCP tools over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.close()

			finder, err := cfg.newFinder(ctx)
			if err != nil {
				return err
			}
			agent, err := cfg.newAgent(ctx, finder)
			if err != nil {
				return err
			}

			logging.From(ctx).Info("starting MCP server", "owner", cfg.owner, "repo", cfg.repo, "index", cfg.index)
			return mcp.NewServer(version, finder, agent).Run(ctx)
		},
	}
}

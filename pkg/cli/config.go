package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/culprit/pkg/adapter"
	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/policy"
	"github.com/m-mizutani/culprit/pkg/repository"
	"github.com/m-mizutani/culprit/pkg/tool"
	"github.com/m-mizutani/culprit/pkg/tool/diffs"
	"github.com/m-mizutani/culprit/pkg/tool/websearch"
	"github.com/m-mizutani/culprit/pkg/usecase/change"
	"github.com/m-mizutani/culprit/pkg/usecase/diagnose"
	"github.com/m-mizutani/culprit/pkg/usecase/index"
	"github.com/m-mizutani/culprit/pkg/usecase/judge"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// GitHub
	githubToken   string
	owner         string
	repo          string
	githubBaseURL string

	// Qdrant
	qdrantURL    string
	qdrantAPIKey string
	index        string

	// LLM
	geminiAPIKey      string
	geminiProject     string
	geminiLocation    string
	geminiModel       string
	embeddingProvider string
	openAIAPIKey      string

	// Session store
	project  string
	database string
	bucket   string
	dataDir  string

	// Agent
	maxIterations   int64
	timeout         time.Duration
	recencyWindow   time.Duration
	topK            int64
	diffConcurrency int64
	tavilyAPIKey    string

	closers []func() error
	gemini  adapter.Gemini
}

// requiredError names both the flag and its environment variable.
func requiredError(flag, env string) error {
	return goerr.Wrap(model.ErrConfig, fmt.Sprintf("--%s (or %s) is required", flag, env))
}

// githubFlags returns flags for the source repository with destination config
func githubFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "github-token",
			Usage:       "GitHub token to read pull requests",
			Sources:     cli.EnvVars("GITHUB_TOKEN"),
			Destination: &cfg.githubToken,
		},
		&cli.StringFlag{
			Name:        "owner",
			Usage:       "Owner of the GitHub repository",
			Sources:     cli.EnvVars("CULPRIT_GITHUB_OWNER"),
			Destination: &cfg.owner,
		},
		&cli.StringFlag{
			Name:        "repo",
			Usage:       "Name of the GitHub repository",
			Sources:     cli.EnvVars("CULPRIT_GITHUB_REPO"),
			Destination: &cfg.repo,
		},
		&cli.StringFlag{
			Name:        "github-base-url",
			Usage:       "GitHub API base URL, for GitHub Enterprise",
			Sources:     cli.EnvVars("CULPRIT_GITHUB_BASE_URL"),
			Destination: &cfg.githubBaseURL,
		},
	}
}

// qdrantFlags returns flags for the vector index with destination config
func qdrantFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "qdrant-url",
			Usage:       "Qdrant gRPC endpoint",
			Value:       "http://localhost:6334",
			Sources:     cli.EnvVars("QDRANT_URL"),
			Destination: &cfg.qdrantURL,
		},
		&cli.StringFlag{
			Name:        "qdrant-api-key",
			Usage:       "Qdrant API key",
			Sources:     cli.EnvVars("QDRANT_API_KEY"),
			Destination: &cfg.qdrantAPIKey,
		},
		&cli.StringFlag{
			Name:        "index",
			Usage:       "Name of the Qdrant collection holding pull requests",
			Value:       "pull_requests",
			Sources:     cli.EnvVars("CULPRIT_INDEX"),
			Destination: &cfg.index,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key. Vertex AI is used when empty",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini on Vertex AI",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini on Vertex AI",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model for reasoning",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (gemini or openai)",
			Value:       "gemini",
			Sources:     cli.EnvVars("CULPRIT_EMBEDDING_PROVIDER"),
			Destination: &cfg.embeddingProvider,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key, required with --embedding-provider openai",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openAIAPIKey,
		},
	}
}

// storeFlags returns flags for session persistence with destination config
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID for Firestore. Local SQLite is used when empty",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for session contents, required with --project",
			Sources:     cli.EnvVars("CULPRIT_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "data-dir",
			Usage:       "Directory for local session storage (default: ~/.culprit)",
			Sources:     cli.EnvVars("CULPRIT_DATA_DIR"),
			Destination: &cfg.dataDir,
		},
	}
}

// agentFlags returns flags for retrieval and the diagnosis loop with destination config
func agentFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-iterations",
			Usage:       "Maximum number of model turns per diagnosis",
			Value:       diagnose.DefaultMaxIterations,
			Destination: &cfg.maxIterations,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Time limit of a diagnosis",
			Value:       diagnose.DefaultTimeout,
			Destination: &cfg.timeout,
		},
		&cli.DurationFlag{
			Name:        "recency-window",
			Usage:       "Only pull requests updated within this window are candidates",
			Value:       index.DefaultRecencyWindow,
			Destination: &cfg.recencyWindow,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Usage:       "Number of candidate pull requests handed to the judge",
			Value:       diffs.DefaultTopK,
			Destination: &cfg.topK,
		},
		&cli.IntFlag{
			Name:        "diff-concurrency",
			Usage:       "Number of diffs fetched in parallel",
			Value:       1,
			Destination: &cfg.diffConcurrency,
		},
		&cli.StringFlag{
			Name:        "tavily-api-key",
			Usage:       "Tavily API key. web_search is disabled when empty",
			Sources:     cli.EnvVars("TAVILY_API_KEY"),
			Destination: &cfg.tavilyAPIKey,
		},
	}
}

func (cfg *config) close() {
	for i := len(cfg.closers) - 1; i >= 0; i-- {
		_ = cfg.closers[i]()
	}
	cfg.closers = nil
}

func (cfg *config) requireRepository() error {
	if cfg.owner == "" {
		return requiredError("owner", "CULPRIT_GITHUB_OWNER")
	}
	if cfg.repo == "" {
		return requiredError("repo", "CULPRIT_GITHUB_REPO")
	}
	return nil
}

// newGitHub creates a new GitHub adapter instance
func (cfg *config) newGitHub() (adapter.GitHub, error) {
	if cfg.githubToken == "" {
		return nil, requiredError("github-token", "GITHUB_TOKEN")
	}
	if err := cfg.requireRepository(); err != nil {
		return nil, err
	}

	var opts []adapter.GitHubOption
	if cfg.githubBaseURL != "" {
		opts = append(opts, adapter.WithGitHubBaseURL(cfg.githubBaseURL))
	}
	gh, err := adapter.NewGitHub(cfg.githubToken, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GitHub client")
	}
	return gh, nil
}

// newQdrant creates a new vector index client
func (cfg *config) newQdrant() (adapter.VectorIndex, error) {
	if cfg.qdrantURL == "" {
		return nil, requiredError("qdrant-url", "QDRANT_URL")
	}
	if cfg.index == "" {
		return nil, requiredError("index", "CULPRIT_INDEX")
	}

	client, err := adapter.NewQdrant(cfg.qdrantURL, cfg.qdrantAPIKey)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Qdrant client")
	}
	cfg.closers = append(cfg.closers, client.Close)
	return client, nil
}

// newGemini creates a new Gemini adapter instance, once per command
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.gemini != nil {
		return cfg.gemini, nil
	}

	opts := []adapter.GeminiOption{adapter.WithGenerativeModel(cfg.geminiModel)}
	if cfg.geminiAPIKey != "" {
		opts = append(opts, adapter.WithGeminiAPIKey(cfg.geminiAPIKey))
	} else {
		if cfg.geminiProject == "" {
			return nil, goerr.Wrap(model.ErrConfig, "--gemini-api-key (or GEMINI_API_KEY) or --gemini-project (or GEMINI_PROJECT_ID) is required")
		}
		if cfg.geminiLocation == "" {
			return nil, requiredError("gemini-location", "GEMINI_LOCATION")
		}
	}

	gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client")
	}
	cfg.gemini = gemini
	return gemini, nil
}

// newEmbedder creates the embedder selected by --embedding-provider
func (cfg *config) newEmbedder(ctx context.Context) (adapter.Embedder, error) {
	switch cfg.embeddingProvider {
	case "gemini":
		gemini, err := cfg.newGemini(ctx)
		if err != nil {
			return nil, err
		}
		return adapter.NewGeminiEmbedder(gemini, adapter.DefaultDimension), nil

	case "openai":
		if cfg.openAIAPIKey == "" {
			return nil, requiredError("openai-api-key", "OPENAI_API_KEY")
		}
		embedder, err := adapter.NewOpenAIEmbedder(cfg.openAIAPIKey, adapter.DefaultDimension)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI embedder")
		}
		return embedder, nil

	default:
		return nil, goerr.Wrap(model.ErrConfig, "--embedding-provider must be gemini or openai",
			goerr.V("embedding_provider", cfg.embeddingProvider))
	}
}

// newWebSearch returns nil when no Tavily key is configured
func (cfg *config) newWebSearch() adapter.WebSearch {
	if cfg.tavilyAPIKey == "" {
		return nil
	}
	return adapter.NewTavily(cfg.tavilyAPIKey)
}

// newPolicy returns nil when no policy directory is given
func (cfg *config) newPolicy(ctx context.Context, dir string) (*policy.Engine, error) {
	if dir == "" {
		return nil, nil
	}
	engine, err := policy.New(ctx, dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load ingest policy", goerr.V("policy_dir", dir))
	}
	return engine, nil
}

func (cfg *config) newRetriever(ctx context.Context) (*index.Retriever, error) {
	embedder, err := cfg.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	vectorIndex, err := cfg.newQdrant()
	if err != nil {
		return nil, err
	}
	return index.NewRetriever(embedder, vectorIndex, index.WithRecencyWindow(cfg.recencyWindow)), nil
}

// newFinder wires retriever, diff fetcher and judge into the find_relevant_diffs pipeline
func (cfg *config) newFinder(ctx context.Context) (*diffs.Finder, error) {
	gh, err := cfg.newGitHub()
	if err != nil {
		return nil, err
	}
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}
	retriever, err := cfg.newRetriever(ctx)
	if err != nil {
		return nil, err
	}

	fetcher := change.NewDiffFetcher(gh, change.WithConcurrency(int(cfg.diffConcurrency)))
	return diffs.NewFinder(retriever, fetcher, judge.New(gemini), diffs.Config{
		Owner: cfg.owner,
		Repo:  cfg.repo,
		Index: cfg.index,
		TopK:  int(cfg.topK),
	}), nil
}

// newSessionStore uses Firestore and Cloud Storage when a project is set, otherwise SQLite and
// files under the data directory.
func (cfg *config) newSessionStore(ctx context.Context) (*diagnose.SessionStore, error) {
	if cfg.project != "" {
		if cfg.bucket == "" {
			return nil, requiredError("bucket", "CULPRIT_BUCKET")
		}
		repo, err := repository.New(cfg.project, cfg.database)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		cfg.closers = append(cfg.closers, repo.Close)

		storage, err := adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create storage")
		}
		return diagnose.NewSessionStore(repo, storage), nil
	}

	dir, err := cfg.resolveDataDir()
	if err != nil {
		return nil, err
	}
	repo, err := repository.NewSQLite(filepath.Join(dir, "culprit.db"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	cfg.closers = append(cfg.closers, repo.Close)

	storage, err := adapter.NewFileStorage(dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return diagnose.NewSessionStore(repo, storage), nil
}

func (cfg *config) resolveDataDir() (string, error) {
	if cfg.dataDir != "" {
		return cfg.dataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", goerr.Wrap(model.ErrConfig, "cannot determine home directory, set --data-dir (or CULPRIT_DATA_DIR)",
			goerr.V("cause", err.Error()))
	}
	return filepath.Join(home, ".culprit"), nil
}

// newAgent builds the diagnosis agent with find_relevant_diffs and, if configured, web_search
func (cfg *config) newAgent(ctx context.Context, finder *diffs.Finder) (*diagnose.Agent, error) {
	if cfg.maxIterations <= 0 {
		return nil, goerr.Wrap(model.ErrConfig, "--max-iterations must be positive", goerr.V("max_iterations", cfg.maxIterations))
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	finderTool, err := diffs.New(finder)
	if err != nil {
		return nil, err
	}
	searchTool, err := websearch.New(cfg.newWebSearch())
	if err != nil {
		return nil, err
	}
	registry, err := tool.New(finderTool, searchTool)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build tool registry")
	}

	store, err := cfg.newSessionStore(ctx)
	if err != nil {
		return nil, err
	}

	return diagnose.New(gemini, registry,
		diagnose.WithMaxIterations(int(cfg.maxIterations)),
		diagnose.WithTimeout(cfg.timeout),
		diagnose.WithSessionStore(store),
	), nil
}

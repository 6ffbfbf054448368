package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/kbpulse/internal/content"
	"github.com/Aman-CERP/kbpulse/internal/search"
)

// datasetEnvelope mirrors the /api/search/index response.
type datasetEnvelope struct {
	Data        *search.Dataset `json:"data"`
	Cached      bool            `json:"cached"`
	GeneratedAt int64           `json:"generatedAt"`
}

// newDatasetCmd creates the dataset command.
func newDatasetCmd() *cobra.Command {
	var (
		rebuild    bool
		jsonOutput bool
		url        string
	)

	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Build the search dataset and print its taxonomy",
		Long: `Build the search dataset from the content directory and print a
taxonomy summary. With --url the dataset is fetched from a running server
instead, and --rebuild forces that server to rebuild it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				env *datasetEnvelope
				err error
			)
			if url != "" {
				env, err = fetchDataset(cmd.Context(), http.DefaultClient, url, rebuild)
			} else {
				env, err = buildDataset(cmd.Context())
			}
			if err != nil {
				return err
			}
			defer func() { _ = env.Data.Close() }()

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), env)
			}
			newPrinter(cmd).Taxonomy(len(env.Data.Documents), env.GeneratedAt, env.Data.Taxonomy)
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Force the server to rebuild (with --url)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the dataset as JSON")
	cmd.Flags().StringVar(&url, "url", "", "Fetch from a running server, e.g. 127.0.0.1:3100")

	return cmd
}

// buildDataset builds the dataset once from the configured content root.
func buildDataset(ctx context.Context) (*datasetEnvelope, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store := content.NewFileStore(cfg.Content.Root, cfg.Content.Extension)
	cache := search.NewCache(search.StoreBuilder(store, search.BuildOptions{ExcerptWords: cfg.Search.ExcerptWords}))

	res, err := cache.Get(ctx, true)
	if err != nil {
		return nil, err
	}
	return &datasetEnvelope{Data: res.Dataset, Cached: res.Cached, GeneratedAt: res.GeneratedAt}, nil
}

func fetchDataset(ctx context.Context, client *http.Client, addr string, rebuild bool) (*datasetEnvelope, error) {
	url := baseURL(addr) + "/api/search/index"
	if rebuild {
		url += "?rebuild=true"
	}
	resp, err := apiGet(ctx, client, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env datasetEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		env.Data = &search.Dataset{}
	}
	return &env, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

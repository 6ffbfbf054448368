package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/kbpulse/internal/content"
	"github.com/Aman-CERP/kbpulse/internal/search"
)

// newSearchCmd creates the search command.
func newSearchCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
		server     string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over the knowledge base",
		Long: `Search article titles, summaries, tags and bodies. Without --url the
dataset is built locally from the content directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			var (
				res *search.Results
				err error
			)
			if server != "" {
				res, err = remoteSearch(cmd.Context(), http.DefaultClient, server, query, limit)
			} else {
				res, err = localSearch(cmd.Context(), query, limit)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			newPrinter(cmd).Hits(res)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum hits (0 uses search.default_limit)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().StringVar(&server, "url", "", "Query a running server, e.g. 127.0.0.1:3100")

	return cmd
}

func localSearch(ctx context.Context, query string, limit int) (*search.Results, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store := content.NewFileStore(cfg.Content.Root, cfg.Content.Extension)
	cache := search.NewCache(search.StoreBuilder(store, search.BuildOptions{ExcerptWords: cfg.Search.ExcerptWords}))
	searcher, err := search.NewSearcher(cache, cfg.Search.QueryCacheSize, cfg.Search.DefaultLimit)
	if err != nil {
		return nil, err
	}
	return searcher.Search(ctx, query, limit)
}

func remoteSearch(ctx context.Context, client *http.Client, addr, query string, limit int) (*search.Results, error) {
	params := url.Values{"q": {query}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	resp, err := apiGet(ctx, client, baseURL(addr)+"/api/search?"+params.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res search.Results
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

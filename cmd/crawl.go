package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// newCrawlCmd creates the 'crawl' subcommand, a synchronous one-off crawl
// that bypasses the job queue.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl <domain>",
		Short: "Crawls one domain now and prints the product URLs found",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			domain := strings.TrimSpace(args[0])
			if crawler.IsBlank(domain) {
				return crawler.NewValidationError("domain")
			}

			urls, err := appInstance.Engine.Crawl(cmd.Context(), domain, nil)
			if err != nil {
				return fmt.Errorf("crawl %s: %w", domain, err)
			}
			appInstance.Logger.Info("crawl finished", zap.String("domain", domain), zap.Int("urls_found", len(urls)))
			for _, u := range urls {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
}

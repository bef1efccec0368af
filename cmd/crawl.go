package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common"
	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/LexiconIndonesia/website-crawler-service/common/work"
	"github.com/LexiconIndonesia/website-crawler-service/crawlers/fetcher"
	"github.com/LexiconIndonesia/website-crawler-service/crawlers/worker"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	crawlDomains  []string
	crawlParallel int
	crawlBusiness bool
	crawlNoBar    bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <link>[,<link>...] [link...]",
	Short: "Crawl websites locally and print the results as JSON",
	Long:  "Runs the crawler in this process, without NATS, and writes one result per link to stdout.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var links []string
		for _, arg := range args {
			links = append(links, models.SplitLinks(arg)...)
		}
		if len(links) == 0 {
			return common.ErrNoLinks
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		crawlCfg := cfg
		if crawlBusiness {
			crawlCfg.Crawl.BusinessMode = true
		}
		f, err := fetcher.New(crawlCfg)
		if err != nil {
			return err
		}
		if c, ok := f.(io.Closer); ok {
			defer c.Close()
		}

		var bar *progressbar.ProgressBar
		if !crawlNoBar {
			bar = newProgressBar(len(links), "crawling")
		}

		results, err := crawlLocally(ctx, newCrawler(crawlCfg, f), links, crawlDomains, crawlParallel, bar)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// crawlLocally runs one crawl per link on a worker pool and returns the results
// in link order. Failed crawls become error results, as they do on the queue.
func crawlLocally(ctx context.Context, crawler worker.Crawler, links, domains []string, parallel int, bar *progressbar.ProgressBar) ([]models.CrawlResult, error) {
	if parallel <= 0 {
		parallel = 4
	}
	pool, err := work.NewWorkerPoolWithConfig[models.CrawlResult](work.PoolConfig{
		NumWorkers:      parallel,
		TaskChannelSize: len(links),
		ResultChanSize:  len(links),
		TaskTimeout:     cfg.Queue.AckWait * 9 / 10,
		ShutdownTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	pool.Start(ctx, "local-crawl")

	index := make(map[string]int, len(links))
	for i, link := range links {
		id := fmt.Sprintf("%d", i)
		index[id] = i
		task, err := work.NewTask(func(ctx context.Context) (models.CrawlResult, error) {
			start := time.Now()
			report, err := crawler.Crawl(ctx, models.WebDetails{Link: link, Domains: domains})
			elapsed := time.Since(start).Milliseconds()
			if err != nil {
				return models.NewErrorResult(link, err, elapsed), nil
			}
			return report.ToResult(link, elapsed), nil
		}, work.WithID[models.CrawlResult](id))
		if err != nil {
			pool.Stop()
			return nil, err
		}
		// The task buffer holds every link, so this never blocks.
		if err := pool.AddTask(context.Background(), task); err != nil {
			pool.Stop()
			return nil, err
		}
	}

	results := make([]models.CrawlResult, len(links))
collect:
	for received := 0; received < len(links); received++ {
		var r work.TaskResult[models.CrawlResult]
		select {
		case <-ctx.Done():
			break collect
		case res, ok := <-pool.Results():
			if !ok {
				break collect
			}
			r = res
		}
		i := index[r.TaskID]
		if r.Error != nil {
			// Only a timeout or cancellation gets here.
			results[i] = models.NewErrorResult(links[i], r.Error, r.Duration.Milliseconds())
		} else {
			results[i] = r.Result
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	pool.Stop()

	for i := range results {
		if results[i].Link == "" {
			results[i] = models.NewErrorResult(links[i], errors.New("crawl did not finish"), 0)
		}
	}
	if ctx.Err() != nil {
		log.Warn().Msg("Crawl interrupted, printing partial results")
	}
	return results, nil
}

func init() {
	crawlCmd.Flags().StringSliceVar(&crawlDomains, "domains", nil, "email domains to list first")
	crawlCmd.Flags().IntVar(&crawlParallel, "parallel", 4, "websites crawled at once")
	crawlCmd.Flags().BoolVar(&crawlBusiness, "business", false, "extract services only")
	crawlCmd.Flags().BoolVar(&crawlNoBar, "no-progress", false, "hide the progress bar")
	rootCmd.AddCommand(crawlCmd)
}

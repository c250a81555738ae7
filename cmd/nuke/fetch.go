package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/1930s/Nuke/internal/config"
	"github.com/1930s/Nuke/internal/progress"
	"github.com/1930s/Nuke/pkg/httpload"
	"github.com/1930s/Nuke/pkg/nuke"
	"github.com/1930s/Nuke/pkg/transform"
)

func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)

	configPath := fs.String("config", "", "Path to YAML config file")
	out := fs.String("out", "", "Output directory (default: current directory)")
	resize := fs.String("resize", "", "Resize target as WIDTHxHEIGHT, e.g. 800x600")
	progressive := fs.Bool("progressive", false, "Report progressively decoded frames")
	rateLimit := fs.Bool("rate-limit", false, "Rate-limit fetch starts")
	workers := fs.Int("workers", 0, "Number of concurrent fetches")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: nuke fetch [options] <url> [url...]

Download images through the pipeline and write them as PNG files.
Duplicate URLs share a single download; interrupted downloads are
resumed on the next run of the same URL within a session.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	urls := fs.Args()
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one URL is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg := config.Default()
	if *configPath != "" {
		fileCfg, err := config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	cfg = cfg.Merge(config.Config{
		OutputDir:    *out,
		FetchWorkers: *workers,
		RateLimit:    *rateLimit,
		Progressive:  *progressive,
	})
	if *resize != "" {
		w, h, err := parseResize(*resize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
		cfg.ResizeWidth, cfg.ResizeHeight = w, h
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[nuke] Received interrupt, shutting down...")
		cancel()
	}()

	return fetchAll(ctx, cfg, urls)
}

func fetchAll(ctx context.Context, cfg config.Config, urls []string) int {
	pipeline := nuke.New(nuke.Options{
		Loader: httpload.New(httpload.Options{
			MaxIdleConnsPerHost: 100,
			RetryAttempts:       cfg.Retry.Attempts,
			RetryBackoff:        cfg.Retry.Backoff,
			RetryMaxBackoff:     cfg.Retry.MaxBackoff,
		}),
		Cache:                     nuke.NewMemoryCache(cfg.CacheBytes),
		EnableRateLimiting:        cfg.RateLimit,
		EnableProgressiveDecoding: cfg.Progressive,
		DisableResumableData:      cfg.NoResume,
		FetchWorkers:              cfg.FetchWorkers,
		ProcessWorkers:            cfg.ProcessWorkers,
	})
	defer pipeline.Close()

	var processor nuke.Processor
	if cfg.ResizeWidth > 0 {
		processor = transform.Fit{Width: cfg.ResizeWidth, Height: cfg.ResizeHeight}
	}

	okColor := color.New(color.FgGreen)
	failColor := color.New(color.FgRed)
	dimColor := color.New(color.Faint)

	reporter := progress.NewReporter(progress.Options{TotalDownloads: len(urls)})
	reporter.Start()

	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := 0

	for _, url := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()

			resp, err := fetchOne(ctx, pipeline, reporter, url, processor)
			if err != nil {
				reporter.Failed(url)
				failColor.Fprintf(os.Stderr, "\n[nuke] FAIL %s: %v\n", url, err)
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}

			dest := filepath.Join(cfg.OutputDir, outputName(url))
			if err := writePNG(dest, resp); err != nil {
				reporter.Failed(url)
				failColor.Fprintf(os.Stderr, "\n[nuke] FAIL %s: %v\n", url, err)
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}
			reporter.Completed(url)

			okColor.Fprintf(os.Stderr, "\n[nuke] OK   %s -> %s\n", url, dest)
			if resp.Metrics.WasDeduplicated {
				dimColor.Fprintf(os.Stderr, "[nuke]      (shared an in-flight download)\n")
			}
			if resp.Metrics.WasCacheHit {
				dimColor.Fprintf(os.Stderr, "[nuke]      (served from memory cache)\n")
			}
		}()
	}
	wg.Wait()
	reporter.Stop()

	if failures > 0 {
		fmt.Fprintf(os.Stderr, "[nuke] %d of %d downloads failed\n", failures, len(urls))
		return ExitFetchError
	}
	return ExitSuccess
}

// fetchOne runs a single download, feeding byte progress to the reporter.
func fetchOne(ctx context.Context, pipeline *nuke.Pipeline, reporter *progress.Reporter, url string, processor nuke.Processor) (*nuke.Response, error) {
	type outcome struct {
		resp *nuke.Response
		err  error
	}
	ch := make(chan outcome, 1)
	task := pipeline.Load(nuke.Request{
		URL:       url,
		Priority:  nuke.PriorityNormal,
		Processor: processor,
	}, nuke.Handlers{
		OnProgress: func(completed, total int64) {
			reporter.Update(url, completed, total)
		},
		OnCompletion: func(resp *nuke.Response, err error) {
			ch <- outcome{resp: resp, err: err}
		},
	})

	select {
	case out := <-ch:
		return out.resp, out.err
	case <-ctx.Done():
		task.Cancel()
		return nil, ctx.Err()
	}
}

func writePNG(dest string, resp *nuke.Response) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, resp.Image); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// outputName derives a local file name from a URL path.
func outputName(url string) string {
	name := path.Base(strings.TrimRight(url, "/"))
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if name == "" || name == "." || name == "/" {
		name = "image"
	}
	if ext := path.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	return name + ".png"
}

func parseResize(s string) (width, height int, err error) {
	if _, err := fmt.Sscanf(s, "%dx%d", &width, &height); err != nil {
		return 0, 0, fmt.Errorf("invalid resize %q, expected WIDTHxHEIGHT", s)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid resize %q, dimensions must be positive", s)
	}
	return width, height, nil
}

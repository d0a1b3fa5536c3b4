package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/proto"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Seed        int
	Limit       int
	Queries     []string
}

var topics = []string{
	"golang", "rust", "kubernetes", "postgres", "redis", "kafka",
	"search", "compiler", "networking", "testing", "observability", "security",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the bookmark service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	seed := flag.Int("seed", 500, "bookmarks to add before searching (0 to skip)")
	limit := flag.Int("limit", 10, "results requested per search")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Seed:        *seed,
		Limit:       *limit,
		Queries: []string{
			"golang", "rust compiler", "kubernetes networking", "postgres", "redis cache",
			"kafka streaming", "search engine", "testing tools", "security", "observability tracing",
		},
	}

	fmt.Println("=== Bookmark Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	if cfg.Seed > 0 {
		if err := seedLinks(context.Background(), client, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "seeding failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d bookmarks\n\n", cfg.Seed)
	}

	stats := NewStats()
	start := time.Now()
	runSearches(client, cfg, stats)
	sum := stats.Summarize(time.Since(start))
	sum.Print(os.Stdout)

	if sum.Total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func seedLinks(ctx context.Context, client *http.Client, cfg Config) error {
	for i := 0; i < cfg.Seed; i++ {
		a, b := topics[i%len(topics)], topics[(i*7+3)%len(topics)]
		body, err := json.Marshal(proto.AddLinkRequest{
			URL:         fmt.Sprintf("https://%s.example/%d", a, i),
			Description: fmt.Sprintf("notes on %s and %s", a, b),
			Tags:        []string{a, b},
		})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/links", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("adding bookmark %d: status %d", i, resp.StatusCode)
		}
	}
	resp, err := client.Post(cfg.BaseURL+"/api/v1/commit", "application/json", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func runSearches(client *http.Client, cfg Config, stats *Stats) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := workerID; ctx.Err() == nil; i++ {
				query := cfg.Queries[i%len(cfg.Queries)]
				searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d",
					cfg.BaseURL, url.QueryEscape(query), cfg.Limit)
				search(ctx, client, searchURL, stats)
			}
		}(w)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
}

func search(ctx context.Context, client *http.Client, searchURL string, stats *Stats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		stats.Record(0, 0, false, err)
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			stats.Record(time.Since(start), 0, false, err)
		}
		return
	}
	defer resp.Body.Close()
	var body proto.SearchResponse
	if resp.StatusCode == http.StatusOK {
		json.NewDecoder(resp.Body).Decode(&body)
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	stats.Record(time.Since(start), resp.StatusCode, body.Cached, nil)
}

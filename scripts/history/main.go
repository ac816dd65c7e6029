// History prints the recorded checks of one URL from the results database
// and summarises its availability.
//
// Usage:
//
//	go run ./scripts/history -db results.db -url https://example.com -limit 100
//
// Exit codes:
//
//	0 - URL was up on its latest check
//	2 - database errors
//	3 - URL was down on its latest check
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/angeloszaimis/uptime-monitor/internal/results"
)

func main() {
	dbPath := flag.String("db", "results.db", "Path to the results SQLite database")
	url := flag.String("url", "", "URL to report on")
	limit := flag.Int("limit", 50, "Number of most recent checks to read")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "-url is required")
		os.Exit(2)
	}

	ctx := context.Background()
	sink, err := results.NewSQLiteSink(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open results: %v\n", err)
		os.Exit(2)
	}
	defer sink.Close()

	rows, err := sink.History(ctx, *url, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read history: %v\n", err)
		os.Exit(2)
	}
	if len(rows) == 0 {
		fmt.Printf("No checks recorded for %s\n", *url)
		return
	}

	up := 0
	codes := map[string]int{}
	for _, r := range rows {
		codes[r.Status]++
		if r.Status == "200" {
			up++
		}
		fmt.Printf("%s  %-9s  %7.3fs  %s\n", r.CheckedAt.Format("2006-01-02 15:04:05"), r.Status, r.ResponseTime, r.Error)
	}

	fmt.Printf("Checks: %d  Up: %d  Availability: %.2f%%\n", len(rows), up, float64(up)*100/float64(len(rows)))
	fmt.Println("Per-status counts:")
	for k, v := range codes {
		fmt.Printf("  %s -> %d\n", k, v)
	}

	if rows[0].Status != "200" {
		os.Exit(3)
	}
}

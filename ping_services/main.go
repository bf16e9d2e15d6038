// Ping every operator endpoint in the roster to measure network latency.
//
// Measures cold-start and warm keep-alive HTTP round trips against each
// operator's auth and poll URLs, plus optional WebSocket dial latency.
//
// Usage:
//
//	go run ./ping_services                  # default: 20 requests
//	go run ./ping_services -n 50            # 50 requests per endpoint
//	go run ./ping_services --ws             # also measure WebSocket dials
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	oddsconfig "github.com/calebward/oddsfeed/internal/config"
)

const httpTimeout = 10 * time.Second

func main() {
	n := flag.Int("n", 20, "Number of requests per endpoint")
	ws := flag.Bool("ws", false, "Also measure WebSocket dial latency")
	flag.Parse()

	cfg := oddsconfig.Load()
	ops, err := oddsconfig.LoadOperators(cfg.OperatorsPath)
	if err != nil {
		fmt.Printf("operators roster: %v\n", err)
		return
	}

	for _, op := range ops.Operators {
		fmt.Printf("\n%s\n", strings.Repeat("=", 55))
		fmt.Printf("  %s (%s)\n", strings.ToUpper(op.Name), op.Kind)
		fmt.Printf("%s\n", strings.Repeat("=", 55))

		if op.AuthURL != "" {
			pingHTTP(op.AuthURL, *n)
		}
		for _, u := range op.URLs {
			pingHTTP(u, *n)
		}
		if *ws && op.URL != "" {
			pingWebsocket(op.URL, *n)
		}
	}
	fmt.Println()
}

func pingHTTP(url string, n int) {
	fmt.Printf("\n  Endpoint — %s\n", url)

	fmt.Println("\n  Cold-start request (DNS + TLS + HTTP):")
	if ms, code, err := measureHTTP(url, nil); err != nil {
		fmt.Printf("    FAILED — %v\n", err)
	} else {
		fmt.Printf("    %.1f ms  (HTTP %d)\n", ms, code)
	}

	fmt.Printf("\n  Warm HTTP latency (%d requests, keep-alive):\n", n)
	client := &http.Client{Timeout: httpTimeout}
	if _, _, err := measureHTTP(url, client); err != nil {
		fmt.Printf("  [!] Warm-up request failed: %v\n", err)
		return
	}
	latencies := make([]float64, 0, n)
	pad := len(fmt.Sprintf("%d", n))
	for i := 1; i <= n; i++ {
		ms, code, err := measureHTTP(url, client)
		if err != nil {
			fmt.Printf("  [%*d/%d]  FAILED — %v\n", pad, i, n, err)
			continue
		}
		latencies = append(latencies, ms)
		fmt.Printf("  [%*d/%d]  %7.1f ms  (HTTP %d)\n", pad, i, n, ms, code)
	}
	printStats(latencies, url)
}

func pingWebsocket(wsURL string, n int) {
	fmt.Printf("\n  WebSocket dial latency (%d dials) — %s\n", n, wsURL)

	latencies := make([]float64, 0, n)
	pad := len(fmt.Sprintf("%d", n))
	for i := 1; i <= n; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		start := time.Now()
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		elapsed := time.Since(start)
		cancel()
		if err != nil {
			fmt.Printf("  [%*d/%d]  FAILED — %v\n", pad, i, n, err)
			continue
		}
		conn.Close()
		ms := float64(elapsed.Microseconds()) / 1000
		latencies = append(latencies, ms)
		fmt.Printf("  [%*d/%d]  %7.1f ms  (WS dial)\n", pad, i, n, ms)
	}
	printStats(latencies, wsURL)
}

func measureHTTP(url string, client *http.Client) (ms float64, statusCode int, err error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}
	c := client
	if c == nil {
		c = &http.Client{Timeout: httpTimeout}
	}
	start := time.Now()
	resp, err := c.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	return float64(elapsed.Microseconds()) / 1000, resp.StatusCode, nil
}

func printStats(latencies []float64, label string) {
	if len(latencies) < 2 {
		fmt.Printf("\n  Not enough %s samples for statistics.\n", label)
		return
	}
	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	mean := 0.0
	for _, v := range latencies {
		mean += v
	}
	mean /= float64(len(latencies))

	variance := 0.0
	for _, v := range latencies {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(latencies) - 1)
	stdev := math.Sqrt(variance)

	median := sorted[len(sorted)/2]
	p95Idx := int(float64(len(sorted)) * 0.95)
	if p95Idx >= len(sorted) {
		p95Idx = len(sorted) - 1
	}

	fmt.Printf("\n  --- Stats (%d requests) ---\n", len(latencies))
	fmt.Printf("  Min:    %7.1f ms\n", sorted[0])
	fmt.Printf("  Max:    %7.1f ms\n", sorted[len(sorted)-1])
	fmt.Printf("  Mean:   %7.1f ms\n", mean)
	fmt.Printf("  Median: %7.1f ms\n", median)
	fmt.Printf("  Stdev:  %7.1f ms\n", stdev)
	fmt.Printf("  p95:    %7.1f ms\n", sorted[p95Idx])
}

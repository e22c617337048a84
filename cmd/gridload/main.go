// Command gridload drives a gridserver with a Zipf-skewed mix of boxes and
// datasets and writes per-request samples plus a latency summary.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mohammed-shakir/gridslice/internal/core/httpclient"
	"github.com/mohammed-shakir/gridslice/internal/logger"
)

type Config struct {
	BaseURL        string
	Endpoint       string
	Mode           string
	Concurrency    int
	Duration       time.Duration
	ZipfS          float64
	ZipfV          float64
	BoxCount       int
	OutputPrefix   string
	RequestTimeout time.Duration
	Seed           uint64
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "target", "http://localhost:8888", "gridserver base URL")
	flag.StringVar(&cfg.Endpoint, "endpoint", "data", "data|rectangles|stats")
	flag.StringVar(&cfg.Mode, "mode", "latlon", "rectangle mode for -endpoint rectangles")
	flag.IntVar(&cfg.Concurrency, "concurrency", 32, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.BoxCount, "boxes", 128, "Distinct boxes in pool")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/gridload", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.Uint64Var(&cfg.Seed, "seed", 0, "workload seed (default: time based)")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

// request result (one sample per request)
type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	ErrorMsg  string
	Target    target
	BoxIndex  int
}

type summary struct {
	StartTime     time.Time      `json:"start"`
	EndTime       time.Time      `json:"end"`
	DurationSec   float64        `json:"duration_sec"`
	TotalRequests int64          `json:"total"`
	SuccessCount  int64          `json:"success"`
	ErrorCount    int64          `json:"errors"`
	StatusCounts  map[string]int `json:"status_counts"`
	ThroughputRPS float64        `json:"throughput_rps"`
	P50Ms         float64        `json:"p50_ms"`
	P95Ms         float64        `json:"p95_ms"`
	P99Ms         float64        `json:"p99_ms"`
	Concurrency   int            `json:"concurrency"`
	ZipfS         float64        `json:"zipf_s"`
	ZipfV         float64        `json:"zipf_v"`
	Boxes         int            `json:"boxes"`
	Datasets      int            `json:"datasets"`
	Target        string         `json:"target"`
	Endpoint      string         `json:"endpoint"`
}

type aggregatedResult struct {
	total    int64
	success  int64
	errors   int64
	byStatus map[string]int
	latMs    []float64
}

func main() {
	cfg := loadConfig()
	zl := logger.Build(logger.Config{Level: "info", Console: true, Component: "gridload"}, os.Stderr)
	l := logger.NewSlog(&zl)

	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		l.Error("mkdir results", "err", err)
		os.Exit(1)
	}
	prefix := fmt.Sprintf("%s_%s", cfg.OutputPrefix, time.Now().UTC().Format("20060102_150405Z"))

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	boxes := makeBoxes(cfg.BoxCount, rand.New(rand.NewPCG(seed, 0)))

	httpClient := httpclient.NewOutbound(httpclient.Options{
		Timeout:             cfg.RequestTimeout,
		MaxIdleConns:        1024,
		MaxIdleConnsPerHost: 256,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	targets, err := fetchTargets(ctx, httpClient, cfg.BaseURL)
	if err != nil || len(targets) == 0 {
		l.Error("no datasets to query", "err", err)
		os.Exit(1)
	}

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		l.Error("open csv", "err", err)
		os.Exit(1)
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "status", "error", "year", "month", "res", "box_idx"})
		agg := aggregatedResult{byStatus: map[string]int{}, latMs: make([]float64, 0, 1<<16)}
		for s := range samplesChan {
			agg.total++
			agg.byStatus[strconv.Itoa(s.Status)]++
			if s.ErrorMsg == "" && s.Status >= 200 && s.Status < 300 {
				agg.success++
				agg.latMs = append(agg.latMs, float64(s.Latency.Microseconds())/1000.0)
			} else {
				agg.errors++
			}
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", float64(s.Latency.Microseconds())/1000.0),
				strconv.Itoa(s.Status),
				s.ErrorMsg,
				strconv.Itoa(s.Target.Year),
				strconv.Itoa(s.Target.Month),
				strconv.Itoa(s.Target.Res),
				strconv.Itoa(s.BoxIndex),
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			l.Warn("csv flush", "err", err)
		}
		resultsChan <- agg
	}()

	startTime := time.Now()
	l.Info("gridload start", "target", cfg.BaseURL, "endpoint", cfg.Endpoint, "duration", cfg.Duration,
		"concurrency", cfg.Concurrency, "boxes", len(boxes), "datasets", len(targets))

	var wg sync.WaitGroup
	for id := range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewPCG(seed, uint64(id)+1))
			zipf := rand.NewZipf(r, cfg.ZipfS, cfg.ZipfV, uint64(len(boxes)-1))
			for ctx.Err() == nil {
				idx := int(zipf.Uint64())
				t := targets[r.IntN(len(targets))]
				u := requestURL(cfg.BaseURL, cfg.Endpoint, t, boxes[idx], cfg.Mode)

				startReq := time.Now()
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
				resp, err := httpClient.Do(req)
				s := sample{Timestamp: startReq, Latency: time.Since(startReq), Target: t, BoxIndex: idx}
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.ErrorMsg = err.Error()
				} else {
					s.Status = resp.StatusCode
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
					if resp.StatusCode < 200 || resp.StatusCode >= 300 {
						s.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
					}
				}

				select {
				case samplesChan <- s:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(samplesChan)
	}()

	agg := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(agg.latMs)
	out := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: agg.total,
		SuccessCount:  agg.success,
		ErrorCount:    agg.errors,
		StatusCounts:  agg.byStatus,
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         percentile(agg.latMs, 50),
		P95Ms:         percentile(agg.latMs, 95),
		P99Ms:         percentile(agg.latMs, 99),
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Boxes:         len(boxes),
		Datasets:      len(targets),
		Target:        cfg.BaseURL,
		Endpoint:      cfg.Endpoint,
	}

	if jsonFile, err := os.Create(filepath.Clean(jsonPath)); err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		_ = jsonFile.Close()
	}

	l.Info("gridload done", "total", out.TotalRequests, "success", out.SuccessCount, "errors", out.ErrorCount,
		"rps", out.ThroughputRPS, "p50_ms", out.P50Ms, "p95_ms", out.P95Ms, "p99_ms", out.P99Ms,
		"samples", csvPath, "summary", jsonPath)
}

package benchmark

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"drivesync/internal/engine"
	"drivesync/internal/index"
)

var namePrefixes = []string{"report", "photo", "invoice", "notes", "backup", "draft", "scan", "video"}

var nameSuffixes = []string{".pdf", ".jpg", ".txt", ".md", ".zip", ".mp4"}

// Run seeds a synthetic index and measures search latency under
// concurrent readers.
func Run(cfg Config, logger *log.Logger) (Result, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[benchmark] ", log.LstdFlags)
	}

	os.Remove(cfg.IndexPath)
	idx, err := index.Open(cfg.IndexPath, logger)
	if err != nil {
		return Result{}, err
	}
	defer idx.Close()

	seedStart := time.Now()
	if err := seed(idx, cfg.Files); err != nil {
		return Result{}, fmt.Errorf("seeding index: %w", err)
	}
	seedDur := time.Since(seedStart)
	logger.Printf("seeded %d records in %s", cfg.Files, FormatDuration(seedDur))

	before := MemorySnapshot()
	start := time.Now()

	var mu sync.Mutex
	var durations []time.Duration
	errCount := 0

	var wg sync.WaitGroup
	for r := 0; r < cfg.Readers; r++ {
		wg.Add(1)
		go func(rngSeed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(rngSeed))
			local := make([]time.Duration, 0, cfg.QueriesPerReader)
			errs := 0
			for q := 0; q < cfg.QueriesPerReader; q++ {
				term := namePrefixes[rng.Intn(len(namePrefixes))]
				qStart := time.Now()
				_, err := idx.Search(term, 50)
				local = append(local, time.Since(qStart))
				if err != nil {
					errs++
				}
			}
			mu.Lock()
			durations = append(durations, local...)
			errCount += errs
			mu.Unlock()
		}(int64(r))
	}
	wg.Wait()

	total := time.Since(start)
	after := MemorySnapshot()
	totalQueries := cfg.Readers * cfg.QueriesPerReader

	return Result{
		Config:  cfg,
		Latency: ComputeStats(durations),
		Throughput: ThroughputMetrics{
			QueriesPerSecond: float64(totalQueries) / total.Seconds(),
			TotalQueries:     totalQueries,
		},
		Resources:     CompareMemory(before, after),
		SeedDuration:  seedDur,
		TotalDuration: total,
		ErrorCount:    errCount,
		ErrorRate:     float64(errCount) / float64(totalQueries),
		Success:       errCount == 0,
	}, nil
}

// seed fills the index with synthetic listing entries in batches.
func seed(idx *index.Index, files int) error {
	const batchSize = 500

	now := time.Now().UTC()
	entries := make([]engine.Entry, 0, batchSize)
	for i := 0; i < files; i++ {
		name := fmt.Sprintf("%s_%05d%s",
			namePrefixes[i%len(namePrefixes)], i, nameSuffixes[i%len(nameSuffixes)])
		entries = append(entries, engine.Entry{
			Path:    name,
			Name:    name,
			Size:    int64(i%4096) * 1024,
			ModTime: now,
		})
		if len(entries) == batchSize {
			if err := idx.UpsertBatch("bench-job", "bench", entries); err != nil {
				return err
			}
			entries = entries[:0]
		}
	}
	if len(entries) > 0 {
		return idx.UpsertBatch("bench-job", "bench", entries)
	}
	return nil
}

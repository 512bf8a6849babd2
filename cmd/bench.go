package main

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/1F47E/go-proximity/pkg/geo"
	"github.com/1F47E/go-proximity/pkg/models"
	"github.com/1F47E/go-proximity/pkg/provider"
	"github.com/1F47E/go-proximity/pkg/proximity"
)

var (
	numStops   int
	numQueries int
	numWorkers int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Compare linear and indexed nearby searches",
	Long:  `Generate random stops inside the service area and time FindNearby over a slice against the R-tree index.`,
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().IntVarP(&numStops, "stops", "s", 100000, "Number of random stops")
	benchCmd.Flags().IntVarP(&numQueries, "queries", "q", 1000, "Number of queries to run")
	benchCmd.Flags().IntVarP(&numWorkers, "workers", "w", runtime.NumCPU(), "Number of worker goroutines")
	benchCmd.Flags().Float64VarP(&radius, "radius", "r", 0, "Search radius in meters (default from config)")
}

type benchResult struct {
	name         string
	totalQueries int64
	totalResults int64
	elapsed      time.Duration
}

func runBench(cmd *cobra.Command, args []string) error {
	if numWorkers < 1 {
		numWorkers = 1
	}
	region := cfg.Region
	stops := randomStops(region, numStops)

	start := time.Now()
	index := geo.NewStopIndex()
	index.Index(stops)
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d stops in %v\n", index.Count(), time.Since(start))

	centers := make([]models.Coordinate, numQueries)
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := range centers {
		centers[i] = randomIn(r, region)
	}

	linear := runQueries(cmd.Context(), "linear", centers, func(svc *proximity.Service) int {
		return len(proximity.FindNearby(svc, stops, radius))
	})
	indexed := runQueries(cmd.Context(), "rtree", centers, func(svc *proximity.Service) int {
		return len(proximity.FindNearbyIndexed[models.Stop](svc, index, radius))
	})

	for _, res := range []benchResult{linear, indexed} {
		if res.totalQueries == 0 {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s:\n", res.name)
		fmt.Fprintf(cmd.OutOrStdout(), "  Total queries: %d\n", res.totalQueries)
		fmt.Fprintf(cmd.OutOrStdout(), "  Total time: %v\n", res.elapsed)
		fmt.Fprintf(cmd.OutOrStdout(), "  Queries per second: %.0f\n", float64(res.totalQueries)/res.elapsed.Seconds())
		fmt.Fprintf(cmd.OutOrStdout(), "  Average results per query: %.1f\n", float64(res.totalResults)/float64(res.totalQueries))
	}
	if linear.elapsed > 0 && indexed.elapsed > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\nSpeedup: %.1fx\n", linear.elapsed.Seconds()/indexed.elapsed.Seconds())
	}
	return nil
}

// runQueries splits centers across workers. Each worker owns a service whose
// fix is moved to every center before the query runs.
func runQueries(ctx context.Context, name string, centers []models.Coordinate, query func(*proximity.Service) int) benchResult {
	var totalResults atomic.Int64
	var queryCount atomic.Int64

	start := time.Now()

	var wg sync.WaitGroup
	perWorker := len(centers) / numWorkers

	for w := 0; w < numWorkers; w++ {
		startIdx := w * perWorker
		endIdx := startIdx + perWorker
		if w == numWorkers-1 {
			endIdx = len(centers)
		}

		wg.Add(1)
		go func(batch []models.Coordinate) {
			defer wg.Done()

			feed := provider.NewFeed()
			svc := proximity.New(cfg.Service(), feed, proximity.WithLogger(logger))
			defer svc.Cleanup()

			local := 0
			for _, c := range batch {
				feed.Publish(models.NewSample(c.Lat, c.Lon, time.Now()))
				if _, err := svc.GetCurrentPosition(ctx); err != nil {
					logger.Warn("bench_fix_error", "err", err)
					return
				}
				local += query(svc)
				queryCount.Add(1)
			}
			totalResults.Add(int64(local))
		}(centers[startIdx:endIdx])
	}

	wg.Wait()
	return benchResult{
		name:         name,
		totalQueries: queryCount.Load(),
		totalResults: totalResults.Load(),
		elapsed:      time.Since(start),
	}
}

func randomIn(r *rand.Rand, box models.BoundingBox) models.Coordinate {
	return models.Coordinate{
		Lat: box.South + r.Float64()*(box.North-box.South),
		Lon: box.West + r.Float64()*(box.East-box.West),
	}
}

func randomStops(box models.BoundingBox, n int) []models.Stop {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	stops := make([]models.Stop, n)
	for i := range stops {
		c := randomIn(r, box)
		stops[i] = models.Stop{ID: fmt.Sprintf("stop_%d", i), Lat: c.Lat, Lon: c.Lon}
	}
	return stops
}

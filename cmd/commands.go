package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/1F47E/go-proximity/pkg/geo"
	"github.com/1F47E/go-proximity/pkg/models"
	"github.com/1F47E/go-proximity/pkg/provider"
	"github.com/1F47E/go-proximity/pkg/proximity"
)

var (
	pointLat float64
	pointLon float64
	radius   float64
	stopOpts stopFlags
	outFile  string
	pushPG   bool
)

var distanceCmd = &cobra.Command{
	Use:   "distance <lat1> <lon1> <lat2> <lon2>",
	Short: "Great-circle distance between two points in meters",
	Args:  cobra.ExactArgs(4),
	RunE:  runDistance,
}

var insideCmd = &cobra.Command{
	Use:   "inside",
	Short: "Check whether a point lies in the service area",
	RunE:  runInside,
}

var nearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "List stops near a point, closest first",
	RunE:  runNearby,
}

var whereCmd = &cobra.Command{
	Use:   "where",
	Short: "Describe a point as a human-readable label",
	RunE:  runWhere,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the stop index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a gob stop index from a YAML catalog or PostGIS",
	RunE:  runIndexBuild,
}

func pointFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&pointLat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&pointLon, "lon", 0, "Longitude")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
}

func init() {
	pointFlags(insideCmd)
	pointFlags(whereCmd)

	pointFlags(nearbyCmd)
	nearbyCmd.Flags().Float64VarP(&radius, "radius", "r", 0, "Search radius in meters (default from config)")
	stopOpts.register(nearbyCmd)

	indexBuildCmd.Flags().StringVar(&stopOpts.stopsFile, "stops", "", "Stop catalog (YAML)")
	indexBuildCmd.Flags().BoolVar(&stopOpts.usePostGIS, "postgis", false, "Read stops in the service region from PostGIS")
	indexBuildCmd.Flags().BoolVar(&pushPG, "push", false, "Also upsert the catalog into PostGIS")
	indexBuildCmd.Flags().StringVarP(&outFile, "out", "o", "stops.gob", "Index file path")
	indexCmd.AddCommand(indexBuildCmd)
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
		out[i] = f
	}
	return out, nil
}

func runDistance(cmd *cobra.Command, args []string) error {
	v, err := parseFloats(args)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%.1f\n", proximity.DistanceMeters(v[0], v[1], v[2], v[3]))
	return nil
}

func runInside(cmd *cobra.Command, args []string) error {
	svc := proximity.New(cfg.Service(), provider.NewFeed(), proximity.WithLogger(logger))
	sample := models.NewSample(pointLat, pointLon, time.Now())

	if svc.IsInServiceArea(&sample) {
		fmt.Fprintln(cmd.OutOrStdout(), "inside")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "outside")
	return nil
}

func runWhere(cmd *cobra.Command, args []string) error {
	opts, closeFn := serviceOptions(nil)
	defer closeFn()

	svc := proximity.New(cfg.Service(), provider.NewFeed(), opts...)
	fmt.Fprintln(cmd.OutOrStdout(), svc.DescribeLocation(cmd.Context(), pointLat, pointLon))
	return nil
}

func runNearby(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, done, err := fixAt(ctx, pointLat, pointLon)
	if err != nil {
		return err
	}
	defer done()

	var results []proximity.Nearby[models.Stop]
	if stopOpts.usePostGIS {
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		r := radius
		if r <= 0 {
			r = cfg.Nearby.RadiusM
		}
		candidates, err := store.StopsNear(ctx, models.Coordinate{Lat: pointLat, Lon: pointLon}, r)
		if err != nil {
			return err
		}
		results = proximity.FindNearby(svc, candidates, r)
	} else {
		index, err := stopOpts.loadIndex()
		if err != nil {
			return err
		}
		results = proximity.FindNearbyIndexed[models.Stop](svc, index, radius)
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no stops nearby")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DISTANCE\tID\tNAME")
	for _, r := range results {
		fmt.Fprintf(w, "%.0f m\t%s\t%s\n", r.DistanceMeters, r.Item.ID, r.Item.Name)
	}
	return w.Flush()
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	stopOpts.resolve()

	var stops []models.Stop
	switch {
	case stopOpts.usePostGIS:
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		if stops, err = store.StopsInRegion(ctx, cfg.Region); err != nil {
			return err
		}
	case stopOpts.stopsFile != "":
		var err error
		if stops, err = geo.LoadStopsYAML(stopOpts.stopsFile); err != nil {
			return err
		}
	default:
		return fmt.Errorf("no stops: pass --stops or --postgis")
	}

	start := time.Now()
	index := geo.NewStopIndex()
	added := index.Index(stops)
	if err := index.SaveToFile(outFile); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	logger.Info("index_built", "stops", added, "skipped", len(stops)-added, "file", outFile, "duration_ms", time.Since(start).Milliseconds())

	if pushPG && !stopOpts.usePostGIS {
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.InitSchema(ctx); err != nil {
			return err
		}
		if err := store.UpsertStops(ctx, index.Stops()); err != nil {
			return err
		}
		logger.Info("stops_pushed", "count", index.Count())
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d stops into %s\n", added, outFile)
	return nil
}

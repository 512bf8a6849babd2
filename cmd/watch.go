package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/1F47E/go-proximity/pkg/geo"
	"github.com/1F47E/go-proximity/pkg/metrics"
	"github.com/1F47E/go-proximity/pkg/models"
	"github.com/1F47E/go-proximity/pkg/provider"
	"github.com/1F47E/go-proximity/pkg/proximity"
)

var (
	trackFile   string
	useNATS     bool
	plainOutput bool
	describe    bool
	metricsAddr string
	watchStops  stopFlags

	deviceID      string
	replaySubject string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live positions from a recorded track or NATS",
	Long: `Subscribe to position updates and show, for every update, whether the device
is inside the service area and which stops are closest.`,
	RunE: runWatch,
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Publish a recorded track to NATS",
	RunE:  runReplay,
}

func init() {
	watchCmd.Flags().StringVarP(&trackFile, "track", "t", "", "Replay a YAML track (default feed.track_file)")
	watchCmd.Flags().BoolVar(&useNATS, "nats", false, "Listen on feed.nats_subject instead of replaying a track")
	watchCmd.Flags().BoolVar(&plainOutput, "plain", false, "Print one line per update instead of the interactive view")
	watchCmd.Flags().BoolVar(&describe, "describe", false, "Reverse-geocode every update")
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (default metrics.addr)")
	watchStops.register(watchCmd)

	replayCmd.Flags().StringVarP(&trackFile, "track", "t", "", "YAML track to publish (default feed.track_file)")
	replayCmd.Flags().StringVar(&deviceID, "device", "replay", "Device id stamped on every message")
	replayCmd.Flags().StringVar(&replaySubject, "subject", "", "Subject to publish on (default positions.<device>)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var stops *geo.StopIndex
	if watchStops.stopsFile != "" || watchStops.indexFile != "" || cfg.Nearby.StopsFile != "" || cfg.Nearby.IndexFile != "" {
		index, err := watchStops.loadIndex()
		if err != nil {
			return err
		}
		stops = index
	}

	collector := metrics.NewCollector()
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	if metricsAddr != "" {
		srv := collector.Serve(metricsAddr, logger)
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	feed := provider.NewFeed()
	opts, closeFn := serviceOptions(collector)
	defer closeFn()
	svc := proximity.New(cfg.Service(), feed, opts...)
	defer svc.Cleanup()

	stream, err := svc.Watch(ctx)
	if err != nil {
		return err
	}

	source, err := startSource(ctx, svc, feed)
	if err != nil {
		return err
	}

	interactive := !plainOutput && isatty.IsTerminal(os.Stdout.Fd())
	if interactive {
		p := tea.NewProgram(newWatchModel(svc, stream, stops, source, describe), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("watch view: %w", err)
		}
		return nil
	}

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case sample, ok := <-stream.C():
			if !ok {
				return nil
			}
			snap := evaluate(svc, stops, sample, stream.Dropped())
			line := plainLine(snap)
			if describe && sample.Coords != nil {
				line += " | " + svc.DescribeLocation(ctx, sample.Coords.Lat, sample.Coords.Lon)
			}
			fmt.Fprintln(out, line)
		}
	}
}

// startSource feeds positions into feed in the background and returns a
// description for display. A finite track stops the watch when it ends.
func startSource(ctx context.Context, svc *proximity.Service, feed *provider.Feed) (string, error) {
	if useNATS {
		if cfg.Feed.NATSURL == "" {
			return "", errors.New("feed.nats_url is not configured")
		}
		src, err := provider.ListenNATS(cfg.Feed.NATSURL, cfg.Feed.NATSSubject, feed, logger)
		if err != nil {
			return "", err
		}
		go func() {
			<-ctx.Done()
			src.Close()
		}()
		return "nats " + cfg.Feed.NATSSubject, nil
	}

	track, err := loadTrack()
	if err != nil {
		return "", err
	}
	go func() {
		err := track.Replay(ctx, cfg.Feed.ReplaySpeed, provider.Into(feed))
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("replay_error", "err", err)
		}
		// queued samples are still drained after the stream closes
		svc.StopWatching()
	}()
	return fmt.Sprintf("track %s (x%g)", track.Name, cfg.Feed.ReplaySpeed), nil
}

func loadTrack() (*provider.Track, error) {
	if trackFile == "" {
		trackFile = cfg.Feed.TrackFile
	}
	if trackFile == "" {
		return nil, errors.New("no position source: pass --track or --nats")
	}
	return provider.LoadTrack(trackFile)
}

func runReplay(cmd *cobra.Command, args []string) error {
	if cfg.Feed.NATSURL == "" {
		return errors.New("feed.nats_url is not configured")
	}
	track, err := loadTrack()
	if err != nil {
		return err
	}
	if replaySubject == "" {
		replaySubject = "positions." + deviceID
	}

	pub, err := provider.NewNATSPublisher(cfg.Feed.NATSURL, replaySubject, deviceID, logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	sent := 0
	err = track.Replay(cmd.Context(), cfg.Feed.ReplaySpeed, func(s models.PositionSample) error {
		sent++
		logger.Debug("replay_publish", "subject", replaySubject, "n", sent)
		return pub.Publish(s)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Published %d positions to %s\n", sent, replaySubject)
	return nil
}

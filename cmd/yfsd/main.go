// Command yfsd runs the filesystem server: it opens a block-device
// image, bootstraps an engine.Engine over it, and serves requests off
// a transport.Transport until signaled to shut down. This replaces the
// original's Yalnix-kernel-managed process lifecycle with a normal
// Unix daemon lifecycle (spec.md §9's re-architecture note), joined via
// golang.org/x/sync/errgroup the way rclone joins its own concurrent
// server loops against a cancellable context.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/yfsproj/yfsd/config"
	"github.com/yfsproj/yfsd/device"
	"github.com/yfsproj/yfsd/disk"
	"github.com/yfsproj/yfsd/dispatch"
	"github.com/yfsproj/yfsd/engine"
	"github.com/yfsproj/yfsd/logging"
	"github.com/yfsproj/yfsd/metrics"
	"github.com/yfsproj/yfsd/transport"
)

var (
	cfgFile      string
	execPath     string
	bindErr      error
	unmarshalErr error
	cfg          config.Config
)

var rootCmd = &cobra.Command{
	Use:   "yfsd",
	Short: "Serve a yfsd filesystem image over a transport",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	rootCmd.Flags().StringVar(&execPath, "exec", "", "Optional path to a client binary to launch once the dispatcher is ready, mirroring yfs.c main()'s initial Fork/Exec of argv[1].")
	bindErr = config.BindFlags(rootCmd.Flags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			unmarshalErr = fmt.Errorf("yfsd: reading config file: %w", err)
			return
		}
	}
	unmarshalErr = config.Unmarshal(viper.GetViper(), &cfg)
}

func run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	met := metrics.New()

	fi, err := os.Stat(cfg.Device.ImagePath)
	if err != nil {
		return fmt.Errorf("yfsd: stat %s: %w", cfg.Device.ImagePath, err)
	}
	numSectors := uint32(fi.Size() / disk.SectorSize)
	dev, err := device.Open(cfg.Device.ImagePath, numSectors)
	if err != nil {
		return fmt.Errorf("yfsd: %w", err)
	}

	eng, err := engine.New(dev, engine.Config{
		BlockCacheSize: cfg.Cache.BlockCacheSize,
		InodeCacheSize: cfg.Cache.InodeCacheSize,
	}, log, met)
	if err != nil {
		return fmt.Errorf("yfsd: %w", err)
	}

	// The real IPC transport (send/receive/copy_from/copy_to against a
	// Yalnix client address space) has no Linux equivalent and is out
	// of scope for this server, same as the original kernel trap
	// interface spec.md §1 names as an external collaborator. Fake
	// stands in until a real transport.Transport is wired here.
	tr := transport.NewFake()
	d := dispatch.New(eng, tr, log, met)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.HandlerFor(met.Registry(), promhttp.HandlerOpts{})}
		g.Go(func() error {
			log.WithField("addr", cfg.Metrics.Addr).Info("serving metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			return srv.Close()
		})
	}

	g.Go(func() error {
		err := d.Serve(gCtx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down")
		return eng.Shutdown()
	})

	g.Go(func() error {
		return exportCacheStats(gCtx, eng, met)
	})

	if execPath != "" {
		g.Go(func() error {
			return runInitialExec(gCtx, log, execPath)
		})
	}

	return g.Wait()
}

// exportCacheStats polls the engine's cumulative cache counters and
// forwards their deltas into met, since Metrics.ObserveCache adds
// increments rather than taking a running total.
func exportCacheStats(ctx context.Context, eng *engine.Engine, met *metrics.Metrics) error {
	var prevBlockHits, prevBlockMiss, prevInodeHits, prevInodeMiss int64
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			bh, bm, ih, im := eng.CacheStats()
			met.ObserveCache("block", bh-prevBlockHits, bm-prevBlockMiss)
			met.ObserveCache("inode", ih-prevInodeHits, im-prevInodeMiss)
			prevBlockHits, prevBlockMiss, prevInodeHits, prevInodeMiss = bh, bm, ih, im
		}
	}
}

// runInitialExec launches path once the dispatcher is serving,
// mirroring yfs.c main()'s Fork/Exec of argv[1] (spec.md §1 names this
// "optional initial exec of a client" as out of scope for the core
// filesystem logic; it lives here in cmd/yfsd instead). The child
// inherits this process's stdio and is killed if the server shuts down
// before it exits on its own.
func runInitialExec(ctx context.Context, log *logrus.Entry, path string) error {
	cmd := exec.CommandContext(ctx, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	log.WithField("exec", path).Info("launching initial client")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("yfsd: exec %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

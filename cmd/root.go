// Package cmd implements the jukebox command-line interface.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/lhoume/jukebox/internal/backend"
	"github.com/lhoume/jukebox/internal/config"
	"github.com/lhoume/jukebox/internal/console"
	"github.com/lhoume/jukebox/internal/log"
	"github.com/lhoume/jukebox/internal/playback"
	"github.com/lhoume/jukebox/internal/prefetch"
	"github.com/lhoume/jukebox/internal/queue"
	"github.com/lhoume/jukebox/internal/resolver"
	"github.com/lhoume/jukebox/internal/state"
)

var (
	flagConfig   string
	flagBackend  string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "jukebox",
	Short: "A single-listener media queue player",
	Long: `jukebox plays a queue of songs from URLs, search queries, and local
files through mpv or ffplay, downloading upcoming items in the background.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "extra config file (TOML)")
	rootCmd.Flags().StringVarP(&flagBackend, "backend", "b", "", "audio backend: mpv, ffplay, or auto")
	rootCmd.Flags().StringVarP(&flagLogLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "jukebox: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagBackend != "" {
		cfg.Backend.Preferred = flagBackend
	}
	if flagLogLevel != "" {
		cfg.Logs.Level = flagLogLevel
	}
	if err := log.Setup(cfg.Logs); err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	stateMgr, err := state.Open(log.Component("state"))
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer stateMgr.Close()

	q := queue.New(cfg.IsVIP)
	restoreQueue(q, stateMgr)

	b, err := backend.Detect(cfg.GetBackendConfig(), log.Component("backend"))
	if err != nil {
		return err
	}
	defer b.Close()

	resolverCfg := cfg.GetResolverConfig()
	if resolverCfg.DownloadDir == "" {
		resolverCfg.DownloadDir = filepath.Join(xdg.CacheHome, "jukebox", "downloads")
	}
	if err := os.MkdirAll(resolverCfg.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	res := resolver.NewYtDlp(resolverCfg.Binary, resolverCfg.DownloadDir, log.Component("resolver"))

	transition := time.Duration(cfg.GetPlayerConfig().TransitionDelayMs) * time.Millisecond
	orch := playback.New(q, b, res, transition, log.Component("playback"))
	restorePlayback(orch, stateMgr)
	orch.SetStateSink(func(s playback.StateSnapshot) {
		stateMgr.SavePlayback(state.PlaybackState{
			RepeatMode:  int(s.Repeat),
			Shuffle:     s.Shuffle,
			SongsPlayed: s.SongsPlayed,
		})
	})

	pf := prefetch.New(q, res, prefetch.Options{
		Lookahead: cfg.GetPrefetchConfig().Lookahead,
	}, log.Component("prefetch"))

	// Every queue mutation schedules a persistence write; structural
	// changes also wake the prefetcher.
	q.AddListener(func(ch queue.Change) {
		stateMgr.SaveQueue(q.Snapshot())
		switch ch.Kind {
		case queue.ItemAdded, queue.ItemRemoved, queue.QueueReordered, queue.QueueRepopulated:
			pf.Poke()
		}
	})

	pf.Start()
	defer pf.Close()
	orch.Run()
	defer orch.Close()

	// A consumed song shifts the lookahead window forward.
	sub := orch.Subscribe()
	go func() {
		for {
			select {
			case <-sub.SongChanged:
				pf.Poke()
			case <-sub.Done:
				return
			}
		}
	}()

	pf.Poke()

	cons, err := console.New(orch, q, pf, log.Component("console"))
	if err != nil {
		return err
	}
	defer cons.Close()

	consoleDone := make(chan error, 1)
	go func() { consoleDone <- cons.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-consoleDone:
		if err != nil {
			return err
		}
	case sig := <-sigCh:
		log.Component("main").WithField("signal", sig.String()).Info("shutting down")
	}

	stateMgr.Flush()
	return nil
}

// restoreQueue reloads the persisted queue. Resolved files that vanished
// from disk between runs fall back to their source URL; entries with no
// way back are dropped. Interrupted downloads restart from pending.
func restoreQueue(q *queue.Queue, stateMgr *state.Manager) {
	items, err := stateMgr.LoadQueue()
	if err != nil {
		log.Component("state").WithError(err).Warn("queue restore failed, starting empty")
		return
	}

	restored := make([]queue.Item, 0, len(items))
	for _, it := range items {
		switch it.DownloadStatus {
		case queue.StatusPreparing, queue.StatusDownloading:
			it.DownloadStatus = queue.StatusPending
			it.DownloadProgress = 0
		}
		if it.Kind == queue.KindFile {
			if _, statErr := os.Stat(it.Content); statErr != nil {
				if it.SourceURL == "" {
					log.Component("state").WithField("content", it.Content).
						Warn("dropping restored item, file missing")
					continue
				}
				it.Kind = queue.KindURL
				it.Content = it.SourceURL
				it.DownloadStatus = queue.StatusPending
				it.DownloadProgress = 0
			}
		}
		restored = append(restored, it)
	}
	if len(restored) > 0 {
		q.Append(restored...)
	}
}

func restorePlayback(orch *playback.Orchestrator, stateMgr *state.Manager) {
	saved, err := stateMgr.LoadPlayback()
	if err != nil {
		log.Component("state").WithError(err).Warn("playback state restore failed")
		return
	}
	if saved == nil {
		return
	}
	orch.Restore(playback.StateSnapshot{
		Repeat:      playback.RepeatMode(saved.RepeatMode),
		Shuffle:     saved.Shuffle,
		SongsPlayed: saved.SongsPlayed,
	})
}

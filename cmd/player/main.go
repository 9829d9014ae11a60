// Command player drives the media pipeline core end to end over one or
// more input URIs: detect each container format, demux and decode its
// first audio stream, and push the resulting PCM through a ring buffer a
// real audio callback would pull from. The real output device and any
// UI/playlist surface are collaborators outside this module's scope; this
// command exists to exercise the pipeline and give it a runnable entry
// point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoon/audiocore/internal/builtins"
	"github.com/jmoon/audiocore/internal/logger"
	"github.com/jmoon/audiocore/internal/notify"
	"github.com/jmoon/audiocore/internal/registry"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	reg := registry.New()
	builtins.Register(reg)

	hub := notify.NewHub(4)
	hub.Subscribe(notify.EventFormatDetected, loggingSink{log: log})
	hub.Subscribe(notify.EventEOF, loggingSink{log: log})
	hub.Subscribe(notify.EventError, loggingSink{log: log})
	defer hub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	errs := make([]error, len(cfg.sources))
	for i, uri := range cfg.sources {
		wg.Add(1)
		go func(i int, uri string) {
			defer wg.Done()
			errs[i] = playSource(ctx, uri, reg, hub, int(cfg.ringBytes), log)
		}(i, uri)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		select {
		case <-done:
			log.Info("sources stopped cleanly")
		case <-shutdownCtx.Done():
			log.Error("forced exit after timeout")
			os.Exit(1)
		}
	}

	failed := false
	for i, err := range errs {
		if err != nil {
			log.Error("playback failed", "source", cfg.sources[i], "error", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
	log.Info("playback finished")
}

// loggingSink is the default notify.Sink wired in at startup; a real
// collaborator (UI, MPRIS surface, scrobbler) would subscribe its own
// sink instead of or alongside this one.
type loggingSink struct {
	log interface {
		Info(msg string, args ...any)
	}
}

func (s loggingSink) Name() string { return "cli-log" }

func (s loggingSink) Handle(_ context.Context, event notify.Event) error {
	s.log.Info("pipeline event", "type", event.Type, "stream_id", event.StreamID, "data", event.Data)
	return nil
}

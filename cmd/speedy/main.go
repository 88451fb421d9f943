package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-chi/chi/v5"

	"speedy/internal/platform/config"
	"speedy/internal/platform/logger"
	"speedy/internal/platform/metrics"
	"speedy/internal/recordstore"
	"speedy/internal/splits"
	"speedy/internal/tui"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "speedy:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = config.Load()

	game := config.GetEnv("SPEEDY_GAME", "")
	if game == "" && len(os.Args) > 1 {
		game = os.Args[1]
	}
	if game == "" {
		return errors.New("no game given: pass it as the first argument or set SPEEDY_GAME")
	}

	uiMode := config.GetEnv("SPEEDY_UI", "tui")
	tick := config.GetEnvDuration("SPEEDY_TICK", 50*time.Millisecond)
	addr := config.GetEnv("HTTP_ADDR", "127.0.0.1:7878")
	dataDir := config.DataDir()

	var logOut io.Writer = os.Stdout
	if uiMode == "tui" {
		f, err := logger.OpenFile(config.GetEnv("SPEEDY_LOG_FILE", "speedy.log"))
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	log := logger.New(config.GetEnv("LOG_LEVEL", "info"), config.GetEnv("LOG_FORMAT", "json"), logOut)

	store, err := recordstore.Open(config.GetEnv("SPEEDY_STORE", "file"), dataDir, config.GetEnv("SPEEDY_SQLITE_DSN", ""))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seq, err := loadSequence(ctx, store, game, config.GetEnvList("SPEEDY_SECTIONS"))
	if err != nil {
		return err
	}

	// A mismatched or unreadable record is fatal: comparing against it would
	// misalign sections.
	pb, sob, err := store.Load(ctx, game, seq)
	if err != nil {
		return fmt.Errorf("load records for %s: %w", game, err)
	}

	met := metrics.New()
	engine := splits.NewEngine(store, log, met)
	timer, err := splits.NewTimer(splits.TimerConfig{
		Game:      game,
		Sequence:  seq,
		Engine:    engine,
		PB:        pb,
		SumOfBest: sob,
		Log:       log,
		Metrics:   met,
	})
	if err != nil {
		return err
	}
	loop := splits.NewLoop(timer, config.GetEnvInt("SPEEDY_TRIGGER_BUFFER", splits.DefaultTriggerBuffer), log, met)
	loopDone := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(loopDone)
	}()

	// SIGUSR1 is the external advance trigger, e.g. from a global hotkey.
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-usr1:
				loop.Trigger()
			}
		}
	}()

	var srv *http.Server
	if addr != "" {
		srv = newServer(addr, timer, loop, store, log, met)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("server error", "error", err)
				stop()
			}
		}()
	}

	log.Info("speedy starting",
		"game", game,
		"sections", len(seq),
		"has_pb", pb != nil,
		"has_sum_of_best", sob != nil,
		"ui", uiMode,
		"http_addr", addr,
		"data_dir", dataDir,
		"pid", os.Getpid(),
	)

	switch uiMode {
	case "tui":
		err = tui.Run(ctx, tui.New(timer, loop, tick), config.GetEnvBool("SPEEDY_ALT_SCREEN", true))
		if errors.Is(err, tea.ErrProgramKilled) {
			err = nil
		}
		stop()
	case "headless":
		err = splits.RenderLoop(ctx, timer, tick, func(b splits.Board) {
			if b.Status == splits.Running {
				met.SetCurrentSection(b.Current)
			}
		})
	default:
		err = fmt.Errorf("unknown SPEEDY_UI %q (valid: tui, headless)", uiMode)
		stop()
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			log.Error("shutdown error", "error", serr)
		}
	}

	// Wait for a run finished just before shutdown to be saved.
	<-loopDone
	if st := timer.Status(); st != splits.Idle {
		log.Warn("exiting with unsaved run", "status", st.String())
	}
	log.Info("speedy stopped")
	return err
}

// loadSequence returns the stored sections of game, registering them from
// SPEEDY_SECTIONS the first time a game is run. Configured sections that
// disagree with the stored ones are rejected.
func loadSequence(ctx context.Context, store splits.RecordStore, game string, configured []string) (splits.SectionSequence, error) {
	seq, err := store.LoadSequence(ctx, game)
	switch {
	case errors.Is(err, splits.ErrUnknownGame) && len(configured) > 0:
		seq = splits.SectionSequence(configured)
		if err := store.SaveSequence(ctx, game, seq); err != nil {
			return nil, fmt.Errorf("register %s: %w", game, err)
		}
		return seq, nil
	case err != nil:
		return nil, err
	case len(configured) > 0 && !seq.Equal(configured):
		return nil, fmt.Errorf("%w: SPEEDY_SECTIONS differs from the sections stored for %s", splits.ErrConfigMismatch, game)
	}
	return seq, nil
}

func newServer(addr string, timer *splits.Timer, loop *splits.Loop, store splits.RecordStore, log *slog.Logger, met *metrics.Metrics) *http.Server {
	h := splits.NewHandler(timer, loop, store, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			snap := timer.Snapshot()
			if snap.Status == splits.Running {
				met.SetCurrentSection(snap.Current)
			} else {
				met.SetCurrentSection(-1)
			}
		}).ServeHTTP(w, r)
	})
	h.Register(r)

	return &http.Server{Addr: addr, Handler: r}
}

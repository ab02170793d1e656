package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/ytget/yt-mp3/internal/config"
	"github.com/ytget/yt-mp3/internal/download"
	"github.com/ytget/yt-mp3/internal/fetch"
	"github.com/ytget/yt-mp3/internal/logging"
	"github.com/ytget/yt-mp3/internal/model"
	"github.com/ytget/yt-mp3/internal/platform"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const (
	AppName = "yt-mp3"

	exitOK       = 0
	exitFailure  = 1
	exitCanceled = 130

	// Upper bound for the delayed cleanup after a cancel
	shutdownTimeout = 2 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	settings := config.Load()

	var (
		outDir   = flag.String("o", settings.DownloadDir, "destination directory")
		bitrate  = flag.String("b", settings.Bitrate.String(), "audio bitrate in kbps (128, 192, 256, 320)")
		template = flag.String("template", settings.FilenameTemplate, "yt-dlp output filename template")
		install  = flag.Bool("install", false, "download yt-dlp if it is not installed")
		showVer  = flag.Bool("version", false, "print version and exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <url>\n", AppName)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVer {
		fmt.Printf("%s v%s\n", AppName, version)
		return exitOK
	}
	if flag.NArg() != 1 {
		flag.Usage()
		return exitFailure
	}

	logger := logging.New(settings.AppEnv, settings.LogLevel)
	logger.Debug().Str("version", version).Msg("starting")

	br, err := model.ParseBitrate(*bitrate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid bitrate: %v\n", err)
		return exitFailure
	}
	settings.SetFilenameTemplate(*template)

	if err := platform.CreateDirectoryIfNotExists(*outDir); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure download dir: %v\n", err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *install {
		path, err := fetch.Install(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("yt-dlp install failed")
			return exitFailure
		}
		logger.Info().Str("path", path).Msg("yt-dlp ready")
	}

	svc := download.NewService(settings, func() fetch.Fetcher {
		return fetch.NewYTDLP(
			fetch.WithProgressInterval(settings.ProgressInterval),
			fetch.WithLogger(logger),
		)
	}, download.WithServiceLogger(logger))

	job, err := svc.Start(flag.Arg(0), *outDir, br)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start download: %v\n", err)
		return exitFailure
	}

	code := follow(ctx, svc, job, logger)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown incomplete")
	}
	// drain cleanup logs emitted while closing
	for ev := range svc.Events() {
		printEvent(ev)
	}

	if code == exitOK {
		if w, ok := svc.GetWorker(job.ID); ok {
			printSaved(w.OutputPath())
		}
	}
	return code
}

// follow prints events until the job ends. The first signal cancels the job.
func follow(ctx context.Context, svc *download.Service, job model.DownloadJob, logger zerolog.Logger) int {
	events := svc.Events()
	interrupted := ctx.Done()

	for {
		select {
		case <-interrupted:
			interrupted = nil
			fmt.Fprintln(os.Stderr)
			logger.Info().Str("job_id", job.ID).Msg("interrupt received, canceling")
			if err := svc.Cancel(job.ID); err != nil && !errors.Is(err, download.ErrJobNotFound) {
				logger.Warn().Err(err).Msg("cancel failed")
			}
		case ev, ok := <-events:
			if !ok {
				return exitFailure
			}
			printEvent(ev)
			if ev.IsTerminal() {
				if ev.Kind == model.EventCanceled {
					return exitCanceled
				}
				return exitOK
			}
		}
	}
}

func printEvent(ev model.Event) {
	switch ev.Kind {
	case model.EventLog:
		fmt.Println(ev.Message)
	case model.EventProgress:
		if ev.Progress == nil {
			return
		}
		title := ev.Progress.GetDisplayTitle()
		if title != "" {
			title += ": "
		}
		fmt.Printf("\r%s%s   ", title, ev.Progress.String())
		if ev.Progress.Fraction >= 1 {
			fmt.Println()
		}
	}
}

func printSaved(path string) {
	if path == "" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Saved to %s\n", path)
		return
	}
	fmt.Printf("Saved to %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
}

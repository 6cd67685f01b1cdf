package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/callops/call-transcriber/internal/acquire"
	"github.com/callops/call-transcriber/internal/batch"
	"github.com/callops/call-transcriber/internal/callstore"
	"github.com/callops/call-transcriber/internal/config"
	"github.com/callops/call-transcriber/internal/fallback"
	"github.com/callops/call-transcriber/internal/ffmpeg"
	"github.com/callops/call-transcriber/internal/logging"
	"github.com/callops/call-transcriber/internal/pipeline"
	"github.com/callops/call-transcriber/internal/report"
	"github.com/callops/call-transcriber/internal/retain"
	"github.com/callops/call-transcriber/internal/runlock"
	"github.com/callops/call-transcriber/pkg/transcriber"
)

const dateLayout = "2006-01-02"

var (
	flagStartDate    string
	flagEndDate      string
	flagOutputFormat string
	flagEngine       string
	flagDryRun       bool
)

func main() {
	root := &cobra.Command{
		Use:   "call-transcriber",
		Short: "Batch transcription of recorded phone calls",
		Long: "Queries the call store for a date range, downloads each recording,\n" +
			"transcribes it through the fallback chain and stores formatted\n" +
			"Spanish transcripts in a year/month/day tree.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	root.Flags().StringVar(&flagStartDate, "start-date", "", "first call date, YYYY-MM-DD (required)")
	root.Flags().StringVar(&flagEndDate, "end-date", "", "last call date, YYYY-MM-DD (required)")
	root.Flags().StringVar(&flagOutputFormat, "output-format", "table", "report format: table, json or xlsx")
	root.Flags().StringVar(&flagEngine, "engine", "whisper", "transcription engine: whisper or mock")
	root.Flags().BoolVar(&flagDryRun, "dry-run", false, "list matching calls without processing them")
	_ = root.MarkFlagRequired("start-date")
	_ = root.MarkFlagRequired("end-date")

	if err := root.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		logrus.Error(err)
		os.Exit(2)
	}
}

// exitError carries a process exit status through cobra.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func run(cmd *cobra.Command, _ []string) error {
	from, to, err := parseDateRange(flagStartDate, flagEndDate)
	if err != nil {
		return err
	}
	switch flagOutputFormat {
	case "table", "json", "xlsx":
	default:
		return fmt.Errorf("unknown output format %q", flagOutputFormat)
	}

	cfg := config.Load()
	logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := callstore.Open(cfg.CallstoreDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	calls, err := store.CallsByDateRange(ctx, from, to)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"from":  flagStartDate,
		"to":    flagEndDate,
		"calls": len(calls),
	}).Info("Calls selected")

	if flagDryRun {
		printDryRun(calls)
		return nil
	}
	if len(calls) == 0 {
		logrus.Info("Nothing to process")
		return nil
	}

	lock, err := runlock.Acquire(cfg.TextOutputPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	orchestrator := fallback.New(ffmpeg.NewNormalizer(), engine, fallback.Config{
		Language: cfg.WhisperLanguage,
		WorkDir:  os.TempDir(),
	})

	cleaner := retain.New(retain.Policy{
		Enabled:         cfg.AutoCleanup,
		CleanAudio:      cfg.CleanupAudioFiles,
		CleanTemp:       cfg.CleanupTempFiles,
		KeepTranscripts: cfg.KeepTranscripts,
		Delay:           cfg.CleanupDelay,
	})

	processor := pipeline.New(
		acquire.New(cfg.AudioBaseURL, cfg.DownloadTimeout, buildS3Client(ctx, cfg)),
		orchestrator,
		cleaner,
		pipeline.Layout{AudioBase: cfg.AudioDownloadPath, TextBase: cfg.TextOutputPath},
	)

	scheduler := batch.New(batch.Config{
		Workers:   cfg.WorkerCount,
		ChunkSize: cfg.ChunkSize,
		Parallel:  cfg.EnableParallel,
	})
	logrus.WithField("workers", scheduler.Workers()).Info("Starting batch")

	summary := &report.Summary{
		From:    flagStartDate,
		To:      flagEndDate,
		Started: time.Now(),
		Results: make([]pipeline.Result, len(calls)),
	}

	errs := scheduler.Run(ctx, len(calls), func(taskCtx context.Context, i int) error {
		res := processor.Process(taskCtx, calls[i])
		summary.Results[i] = res
		if res.Error != "" {
			return errors.New(res.Error)
		}
		return nil
	})
	summary.Finished = time.Now()

	// tasks skipped by cancellation never ran the pipeline, give their
	// slots the scheduler's error
	for i, e := range errs {
		if e != nil && summary.Results[i].CallID == 0 {
			summary.Results[i] = pipeline.Result{
				CallID:   calls[i].ID,
				UserType: calls[i].UserType,
				Error:    e.Error(),
			}
		}
	}

	emitReports(cfg, summary)

	if ctx.Err() != nil {
		return &exitError{code: 130, msg: "interrupted"}
	}
	if code := summary.ExitCode(); code != 0 {
		return &exitError{
			code: code,
			msg:  fmt.Sprintf("%d of %d calls failed", summary.Failed(), len(summary.Results)),
		}
	}
	return nil
}

func parseDateRange(start, end string) (time.Time, time.Time, error) {
	from, err := time.Parse(dateLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start-date %q: expected YYYY-MM-DD", start)
	}
	to, err := time.Parse(dateLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --end-date %q: expected YYYY-MM-DD", end)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end-date %s is before --start-date %s", end, start)
	}
	return from, to, nil
}

func buildEngine(cfg *config.Config) (transcriber.Transcriber, error) {
	switch flagEngine {
	case "mock":
		logrus.Warn("Using mock transcription engine")
		return transcriber.NewMockTranscriber(), nil
	case "whisper":
		return transcriber.NewWhisperTranscriber(transcriber.WhisperConfig{
			Model:         cfg.WhisperModel,
			Language:      cfg.WhisperLanguage,
			Timeout:       cfg.TranscribeTimeout,
			MaxConcurrent: cfg.MaxTranscriptions,
		})
	default:
		return nil, fmt.Errorf("unknown engine %q", flagEngine)
	}
}

// buildS3Client is best effort: s3:// sources are rare and a broken AWS
// environment must not block http downloads.
func buildS3Client(ctx context.Context, cfg *config.Config) acquire.S3Client {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logrus.WithError(err).Warn("AWS config unavailable, s3:// sources disabled")
		return nil
	}
	return s3.NewFromConfig(awsCfg)
}

func printDryRun(calls []callstore.CallRecord) {
	for i, c := range calls {
		fmt.Printf("%4d. id=%d fecha=%s tipo=%s audio=%s\n",
			i+1, c.ID, c.FechaLlamada.Format(time.RFC3339), c.UserType, c.AudioPath)
	}
	fmt.Printf("%d calls would be processed\n", len(calls))
}

func emitReports(cfg *config.Config, summary *report.Summary) {
	stamp := summary.Started.Format("20060102_150405")
	reportDir := filepath.Join(cfg.TextOutputPath, "reports")

	if err := summary.WriteJSONL(filepath.Join(cfg.TextOutputPath, "transcription_log.jsonl")); err != nil {
		logrus.WithError(err).Warn("Could not append result log")
	}

	switch flagOutputFormat {
	case "json":
		path := filepath.Join(reportDir, fmt.Sprintf("run_%s.json", stamp))
		if err := summary.WriteJSON(path); err != nil {
			logrus.WithError(err).Warn("Could not write JSON report")
		} else {
			logrus.WithField("path", path).Info("JSON report written")
		}
	case "xlsx":
		path := filepath.Join(reportDir, fmt.Sprintf("run_%s.xlsx", stamp))
		if err := summary.WriteXLSX(path); err != nil {
			logrus.WithError(err).Warn("Could not write XLSX report")
		} else {
			logrus.WithField("path", path).Info("XLSX report written")
		}
	}

	summary.RenderTable(os.Stdout)
}

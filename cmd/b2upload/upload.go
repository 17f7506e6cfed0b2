package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	b2uploader "github.com/goliatone/go-b2uploader"
	"github.com/goliatone/go-b2uploader/b2"
	"github.com/goliatone/go-b2uploader/config"
)

type uploadFlags struct {
	bucket     string
	prefix     string
	meta       map[string]string
	detectType bool
}

func newUploadCmd() *cobra.Command {
	flags := &uploadFlags{}

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.bucket, "bucket", "", "bucket id (native) or name (s3), overrides config")
	cmd.Flags().StringVar(&flags.prefix, "prefix", "", "object name prefix, overrides B2_BUCKET_PATH_PREFIX")
	cmd.Flags().StringToStringVar(&flags.meta, "meta", nil, "custom file info, e.g. --meta author=jane")
	cmd.Flags().BoolVar(&flags.detectType, "detect-type", false, "sniff content types locally")

	return cmd
}

func runUpload(cmd *cobra.Command, flags *uploadFlags, paths []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if flags.bucket != "" {
		cfg.BucketID = flags.bucket
		cfg.BucketName = flags.bucket
	}
	if flags.prefix != "" {
		cfg.BucketPathPrefix = flags.prefix
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sugar, err := createLogger(debug || cfg.Debug)
	if err != nil {
		return err
	}
	defer sugar.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := b2uploader.NewZapLogger(sugar)

	provider, err := connect(ctx, cfg, sugar, logger)
	if err != nil {
		return err
	}

	manager, err := buildManager(cfg, provider, logger, flags.detectType)
	if err != nil {
		return err
	}

	bucket := cfg.BucketID
	if cfg.Transport == config.TransportS3 {
		bucket = cfg.BucketName
	}

	jobs := make([]*b2uploader.Job, 0, len(paths))
	for _, path := range paths {
		jobs = append(jobs, b2uploader.NewJob(path, bucket,
			b2uploader.WithNamePrefix(cfg.BucketPathPrefix),
			b2uploader.WithMetadata(flags.meta),
		))
	}

	outcomes, batchErr := manager.UploadFiles(ctx, jobs, newProgressPrinter(cmd, time.Second).report)
	failed := 0
	for _, outcome := range outcomes {
		if outcome == nil {
			continue
		}
		if outcome.OK() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", outcome.Job.Path, outcome.Object.Name, outcome.Object.ID)
			continue
		}
		failed++
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", outcome.Job.Path, outcome.Err)
	}

	if batchErr != nil {
		return batchErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(jobs))
	}
	return nil
}

// connect authorizes against B2 and keeps the session fresh until ctx ends.
// The local transport needs no account.
func connect(ctx context.Context, cfg config.Config, sugar *zap.SugaredLogger, logger b2uploader.Logger) (b2uploader.Provider, error) {
	if cfg.Transport == config.TransportLocal {
		return b2uploader.NewFSProvider(cfg.LocalRoot).WithLogger(logger), nil
	}

	client := b2.NewClient()
	session, err := client.Authorize(ctx, cfg.ApplicationKeyID, cfg.ApplicationKey)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	sugar.Infow("authorized", "account", session.AccountID, "api", session.APIURL)

	go client.KeepAlive(ctx, cfg.ApplicationKeyID, cfg.ApplicationKey, cfg.ReauthInterval, func(err error) {
		sugar.Errorw("reauthorize failed", "error", err)
	})

	return buildProvider(cfg, client, session, logger)
}

func buildProvider(cfg config.Config, client *b2.Client, session *b2.Session, logger b2uploader.Logger) (b2uploader.Provider, error) {
	if cfg.Transport == config.TransportS3 {
		s3Client, err := b2uploader.NewS3Client(session, cfg.ApplicationKeyID, cfg.ApplicationKey, cfg.S3Region)
		if err != nil {
			return nil, err
		}
		return b2uploader.NewS3Provider(s3Client, cfg.BucketName).WithLogger(logger), nil
	}
	return b2uploader.NewB2Provider(client).WithLogger(logger), nil
}

func buildManager(cfg config.Config, provider b2uploader.Provider, logger b2uploader.Logger, detectType bool) (*b2uploader.Manager, error) {
	partSize, err := cfg.PartSizeBytes()
	if err != nil {
		return nil, err
	}
	threshold, err := cfg.SingleThresholdBytes()
	if err != nil {
		return nil, err
	}

	return b2uploader.NewManager(
		b2uploader.WithLogger(logger),
		b2uploader.WithProvider(provider),
		b2uploader.WithPartSize(partSize),
		b2uploader.WithSingleUploadThreshold(threshold),
		b2uploader.WithPartsPerWorker(cfg.PartsPerWorker),
		b2uploader.WithRetryPolicy(cfg.MaxAttempts, cfg.RetryDelay),
		b2uploader.WithPartBusyPolicy(cfg.PartBusyRetries, cfg.PartBusyDelay),
		b2uploader.WithContentTypeDetection(detectType),
	), nil
}

// progressPrinter prints at most one line per path per interval, plus the
// final sample.
type progressPrinter struct {
	cmd      *cobra.Command
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

func newProgressPrinter(cmd *cobra.Command, interval time.Duration) *progressPrinter {
	return &progressPrinter{cmd: cmd, interval: interval, last: make(map[string]time.Time)}
}

func (p *progressPrinter) report(path string, sample b2uploader.ProgressSample) {
	now := time.Now()

	p.mu.Lock()
	if sample.Fraction < 1 && now.Sub(p.last[path]) < p.interval {
		p.mu.Unlock()
		return
	}
	p.last[path] = now
	p.mu.Unlock()

	fmt.Fprintf(p.cmd.ErrOrStderr(), "%s %s\n", path, sample)
}

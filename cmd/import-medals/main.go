package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/ingest"
	"github.com/okian/podium/pkg/logger"
	"github.com/spf13/cobra"
)

// ErrMemoryDriver rejects imports into the in-process store, which is gone
// when the command exits.
var ErrMemoryDriver = errors.New("the memory datastore does not outlive the import; use --dry-run or a persistent db_driver")

type options struct {
	csvPath       string
	dryRun        bool
	defaultSeason string
	maxTracked    int
}

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "import-medals",
		Short: "Load a medal CSV into the podium datastore",
		Long: "import-medals reads a per-medal CSV, aggregates it into per-edition " +
			"country, sport and athlete records and upserts them into the datastore " +
			"configured for the podium server (PODIUM_* env, PODIUM_CONFIG file).",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd.Context(), opts, out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.csvPath, "csv", "", "path of the medal CSV")
	f.BoolVar(&opts.dryRun, "dry-run", false, "parse and aggregate without writing")
	f.StringVar(&opts.defaultSeason, "default-season", "", "season for rows without one (summer or winter)")
	f.IntVar(&opts.maxTracked, "max-tracked-awards", 0, "bound on remembered award keys, 0 for no bound")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func runImport(ctx context.Context, opts options, out io.Writer) error {
	log := logger.Get().Named("import")

	season, err := model.ParseSeason(opts.defaultSeason)
	if err != nil {
		return fmt.Errorf("default season: %w", err)
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel))
	}

	file, err := os.Open(opts.csvPath)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = file.Close() }()

	var w ingest.Writer
	if !opts.dryRun {
		store, closeStore, err := openWriter(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()
		w = store
	}

	im := ingest.New(w,
		ingest.WithDryRun(opts.dryRun),
		ingest.WithDefaultSeason(season),
		ingest.WithMaxTrackedAwards(opts.maxTracked),
		ingest.WithLogger(log),
	)
	summary, err := im.Import(ctx, file)
	if err != nil {
		return fmt.Errorf("import %s: %w", opts.csvPath, err)
	}

	printSummary(out, summary)
	return nil
}

// openWriter opens the configured datastore for writing. When redis_addr is
// set the store is wrapped in the server's cache so every upsert drops the
// cached series and listings the server would otherwise keep serving.
func openWriter(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, func(), error) {
	if strings.EqualFold(strings.TrimSpace(cfg.DBDriver), repository.DriverMemory) {
		return nil, nil, ErrMemoryDriver
	}
	base, err := repository.Connect(ctx, cfg.DBDriver, cfg.DBDSN, repository.WithLogger(log))
	if err != nil {
		return nil, nil, fmt.Errorf("open datastore: %w", err)
	}
	if cfg.RedisAddr == "" {
		return base, func() { _ = base.Close() }, nil
	}

	client, err := repository.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Warn(ctx, "redis unavailable; cached forecasts stay stale until cache_ttl expires",
			logger.String("addr", cfg.RedisAddr), logger.Duration("ttl", cfg.CacheTTL), logger.Error(err))
		return base, func() { _ = base.Close() }, nil
	}
	store := repository.NewCachedStore(base, client, log, repository.WithTTL(cfg.CacheTTL))
	return store, func() {
		_ = store.Close()
		_ = client.Close()
	}, nil
}

func printSummary(out io.Writer, s ingest.Summary) {
	mode := "imported"
	if s.DryRun {
		mode = "dry run"
	}
	_, _ = fmt.Fprintf(out, "%s: %d rows (%d medals, %d duplicates, %d without medal, %d invalid) in %s\n",
		mode, s.Rows, s.Imported, s.Duplicates, s.NoMedal, s.Invalid, s.Duration.Round(time.Millisecond))
	for _, kind := range model.Kinds() {
		_, _ = fmt.Fprintf(out, "  %-8s %d records\n", kind, s.Records[kind])
	}
}

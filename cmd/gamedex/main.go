package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"gamedex-scraper/pkg/config"
	"gamedex-scraper/pkg/consolidate"
	"gamedex-scraper/pkg/crawler"
	"gamedex-scraper/pkg/extract"
	"gamedex-scraper/pkg/fetch"
	"gamedex-scraper/pkg/ledger"
	"gamedex-scraper/pkg/metrics"
	"gamedex-scraper/pkg/models"
	"gamedex-scraper/pkg/pagecache"
	"gamedex-scraper/pkg/utils"
)

const version = "1.0.0"

// Exit codes. A ban abort gets its own code so operators (and cron wrappers)
// can distinguish "stop and intervene" from an ordinary failure.
const (
	exitOK       = 0
	exitFailure  = 1
	exitBanAbort = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitFailure)
	}

	switch os.Args[1] {
	case "crawl":
		os.Exit(runCrawl(os.Args[2:]))
	case "consolidate":
		os.Exit(runConsolidate(os.Args[2:]))
	case "reextract":
		os.Exit(runReextract(os.Args[2:]))
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "list-groups":
		os.Exit(runListGroups(os.Args[2:]))
	case "version":
		fmt.Printf("gamedex %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(exitFailure)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `gamedex - polite, resumable game catalog scraper

Usage:
  gamedex <command> [options]

Commands:
  crawl        Consolidate, then crawl every configured group
  consolidate  Merge run batches into canonical datasets only
  reextract    Re-run the extractor over cached pages into a fresh batch
  validate     Validate configuration and catalog files
  list-groups  List the parsed catalog groups
  version      Show version info

Run 'gamedex <command> -h' for command-specific help.`)
}

// commonFlags registers the flags shared by every command.
type commonFlags struct {
	configPath  string
	catalogPath string
	logLevel    string
	logFormat   string
}

func registerCommonFlags(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", "config.yaml", "Path to the application config file")
	fs.StringVar(&cf.catalogPath, "catalog", "catalog.txt", "Path to the group catalog file (name = id lines)")
	fs.StringVar(&cf.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&cf.logFormat, "log-format", "text", "Log format (text or json)")
	return cf
}

// setupLogger builds the process logger from the shared flags.
func setupLogger(cf *commonFlags) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(cf.logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cf.logFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// loadConfig reads the yaml config, applies env overrides and validation.
func loadConfig(cf *commonFlags, log *logrus.Logger) (*config.AppConfig, error) {
	// .env is optional; absence is not an error
	_ = godotenv.Load()

	data, err := os.ReadFile(cf.configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyEnv()

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warnf("Config: %s", w)
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadCatalog reads the group catalog and refuses an empty result.
func loadCatalog(cf *commonFlags, log *logrus.Logger) ([]models.Group, error) {
	groups, err := config.LoadCatalog(cf.catalogPath)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("catalog %s contains no parseable groups", cf.catalogPath)
	}
	log.Infof("Loaded %d group(s) from %s", len(groups), cf.catalogPath)
	return groups, nil
}

func runCrawl(args []string) int {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	cf := registerCommonFlags(fs)
	fs.Parse(args)

	log := setupLogger(cf)
	cfg, err := loadConfig(cf, log)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return exitFailure
	}
	groups, err := loadCatalog(cf, log)
	if err != nil {
		log.Errorf("Catalog error: %v", err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		go func() {
			log.Infof("Serving metrics on %s", cfg.MetricsAddr)
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Warnf("Metrics server stopped: %v", err)
			}
		}()
	}

	// Consolidation always runs before any crawling so every machine starts
	// from the merged view of prior runs
	cons := consolidate.New(cfg.BatchDir, cfg.CanonicalDir, m, logrus.NewEntry(log).WithField("component", "consolidate"))
	if err := cons.Run(ctx, groups); err != nil {
		log.Errorf("Consolidation failed: %v", err)
		return exitFailure
	}

	client := fetch.NewClient(cfg.HTTPClient, log)
	fetcher := fetch.NewFetcher(client, cfg.AddressTemplate, cfg.UserAgent, cfg.BanMarker, cfg.FetchTimeout,
		logrus.NewEntry(log).WithField("component", "fetch"))
	policy := fetch.ResolveRatePolicy(ctx, client, cfg.RobotsURL, cfg.UserAgent, cfg.FallbackDelay,
		logrus.NewEntry(log).WithField("component", "ratepolicy"))
	log.Infof("Rate policy: %s delay (%s)", policy.Delay, policy.Source)

	led, err := ledger.New(cfg.LedgerDir, logrus.NewEntry(log).WithField("component", "ledger"))
	if err != nil {
		log.Errorf("Ledger error: %v", err)
		return exitFailure
	}

	var cache *pagecache.Store
	if cfg.CacheDir != "" {
		cache, err = pagecache.Open(cfg.CacheDir, logrus.NewEntry(log).WithField("component", "pagecache"))
		if err != nil {
			log.Errorf("Page cache error: %v", err)
			return exitFailure
		}
		defer cache.Close()
	}

	machine, err := os.Hostname()
	if err != nil {
		machine = "unknown"
	}
	runID := uuid.NewString()

	c := crawler.New(cfg, fetcher, extract.Extract, led, cache, m, policy.Delay, machine, runID, logrus.NewEntry(log))
	if err := c.Run(ctx, groups); err != nil {
		if errors.Is(err, utils.ErrBanned) {
			log.Errorf("Run aborted: %v", err)
			return exitBanAbort
		}
		log.Errorf("Crawl failed: %v", err)
		return exitFailure
	}

	log.Info("Run complete")
	return exitOK
}

func runConsolidate(args []string) int {
	fs := flag.NewFlagSet("consolidate", flag.ExitOnError)
	cf := registerCommonFlags(fs)
	fs.Parse(args)

	log := setupLogger(cf)
	cfg, err := loadConfig(cf, log)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return exitFailure
	}
	groups, err := loadCatalog(cf, log)
	if err != nil {
		log.Errorf("Catalog error: %v", err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cons := consolidate.New(cfg.BatchDir, cfg.CanonicalDir, nil, logrus.NewEntry(log).WithField("component", "consolidate"))
	if err := cons.Run(ctx, groups); err != nil {
		log.Errorf("Consolidation failed: %v", err)
		return exitFailure
	}
	return exitOK
}

func runReextract(args []string) int {
	fs := flag.NewFlagSet("reextract", flag.ExitOnError)
	cf := registerCommonFlags(fs)
	fs.Parse(args)

	log := setupLogger(cf)
	cfg, err := loadConfig(cf, log)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return exitFailure
	}
	if cfg.CacheDir == "" {
		log.Error("reextract requires cache_dir to be configured")
		return exitFailure
	}
	groups, err := loadCatalog(cf, log)
	if err != nil {
		log.Errorf("Catalog error: %v", err)
		return exitFailure
	}

	cache, err := pagecache.Open(cfg.CacheDir, logrus.NewEntry(log).WithField("component", "pagecache"))
	if err != nil {
		log.Errorf("Page cache error: %v", err)
		return exitFailure
	}
	defer cache.Close()

	machine, err := os.Hostname()
	if err != nil {
		machine = "unknown"
	}

	for _, group := range groups {
		groupLog := logrus.NewEntry(log).WithField("group", group.Name)
		batch, err := crawler.OpenBatchWriter(cfg.BatchDir, group, machine, groupLog)
		if err != nil {
			log.Errorf("Batch error for %s: %v", group.Name, err)
			return exitFailure
		}

		extracted, skipped := 0, 0
		err = cache.Each(group, func(entryID int, page pagecache.Page) error {
			record, err := extract.Extract(page.Body, group, entryID)
			if err != nil {
				if errors.Is(err, utils.ErrNoData) {
					skipped++
					return nil
				}
				return err
			}
			record[models.KeyDuration] = page.Elapsed
			record[models.KeyGroup] = group.Name
			if err := batch.Append(record); err != nil {
				return err
			}
			extracted++
			return nil
		})
		batch.Close()
		if err != nil {
			log.Errorf("Reextract failed for %s: %v", group.Name, err)
			return exitFailure
		}
		groupLog.WithFields(logrus.Fields{"extracted": extracted, "skipped": skipped}).Info("Reextract finished")
	}
	return exitOK
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cf := registerCommonFlags(fs)
	fs.Parse(args)

	log := setupLogger(cf)
	cfg, err := loadConfig(cf, log)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return exitFailure
	}
	groups, err := loadCatalog(cf, log)
	if err != nil {
		log.Errorf("Catalog error: %v", err)
		return exitFailure
	}

	fmt.Printf("Config OK: template=%q timeout=%s batch_size=%d\n", cfg.AddressTemplate, cfg.FetchTimeout, cfg.BatchSize)
	fmt.Printf("Catalog OK: %d group(s)\n", len(groups))
	return exitOK
}

func runListGroups(args []string) int {
	fs := flag.NewFlagSet("list-groups", flag.ExitOnError)
	cf := registerCommonFlags(fs)
	fs.Parse(args)

	log := setupLogger(cf)
	groups, err := loadCatalog(cf, log)
	if err != nil {
		log.Errorf("Catalog error: %v", err)
		return exitFailure
	}
	for _, g := range groups {
		fmt.Printf("%-32s %d\n", g.Name, g.ID)
	}
	return exitOK
}

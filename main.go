// PKHunter - 钓鱼工具包猎手
// Finds phishing kits that hotlink a protected file by following the
// referers recorded in web server access logs.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"pkhunter/config"
	"pkhunter/database"
	"pkhunter/logger"
	"pkhunter/models"
	"pkhunter/scanner/core"
	"pkhunter/scanner/domaininfo"
	"pkhunter/scanner/kitprobe"
	"pkhunter/service/pipeline"
	"pkhunter/service/report"
	"pkhunter/utils"
)

const version = "1.0.0"

type options struct {
	logFile    string
	reportFile string
	configFile string
	verbose    bool
	noProgress bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func banner(w io.Writer) {
	color.New(color.FgRed, color.Bold).Fprintf(w, "-= Phishing Kit Hunter - v%s =-\n\n", version)
}

func newFlagSet(opts *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("pkhunter", pflag.ContinueOnError)
	fs.StringVarP(&opts.logFile, "ifile", "i", "", "Input logfile to analyse")
	fs.StringVarP(&opts.reportFile, "ofile", "o", report.DefaultReportPath(time.Now()),
		"Output report file (.xlsx for a spreadsheet)")
	fs.StringVarP(&opts.configFile, "config", "c", config.DefaultConfigPath, "Configuration file to use")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")
	fs.BoolVar(&opts.noProgress, "no-progress", false, "Hide the progress bar")
	fs.BoolP("help", "h", false, "Prints this")
	fs.SortFlags = false
	return fs
}

func usage(fs *pflag.FlagSet) {
	banner(os.Stdout)
	fmt.Fprintf(os.Stdout, "Usage: pkhunter -i <logfile> [-o <report>] [-c <config>]\n\n%s", fs.FlagUsages())
}

func run(args []string) int {
	var opts options
	fs := newFlagSet(&opts)
	fs.Usage = func() {}
	fs.SetOutput(io.Discard)

	if len(args) == 0 {
		usage(fs)
		return 0
	}
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage(fs)
		return 2
	}
	if help, _ := fs.GetBool("help"); help {
		usage(fs)
		return 0
	}
	if opts.logFile == "" {
		fmt.Fprintln(os.Stderr, "Error: an input logfile is required (-i)")
		usage(fs)
		return 2
	}

	banner(os.Stdout)

	cfg, err := config.LoadConfig(opts.configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.Log, opts.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer log.Close()

	if err := hunt(cfg, opts, log.Logger); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Warn("scan interrupted")
			return 130
		default:
			log.WithError(err).Error("scan aborted")
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	return 0
}

func hunt(cfg *config.Config, opts options, log *logrus.Logger) error {
	patterns, err := config.CompilePatterns(cfg.Default)
	if err != nil {
		return err
	}
	transport, err := kitprobe.ParseTransport(cfg.Connect.HTTPProxy)
	if err != nil {
		return err
	}

	logFile, err := os.Open(opts.logFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: log file does not exist: %s", models.ErrLogSource, opts.logFile)
		}
		return fmt.Errorf("%w: %v", models.ErrLogSource, err)
	}
	defer logFile.Close()

	scanID := uuid.New().String()
	scanLog := log.WithFields(logrus.Fields{"scan_id": scanID, "transport": transport.String()})

	if !report.WritesPerRow(opts.reportFile) {
		scanLog.WithField("report", opts.reportFile).Warn("spreadsheet report is written to disk only when the scan ends")
	}
	sink, err := openSinks(cfg, opts.reportFile, scanID, scanLog)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			scanLog.WithError(cerr).Error("failed to close report")
		}
	}()

	prober, err := kitprobe.NewProber(transport, patterns, kitprobe.Options{
		Timeout:     cfg.Connect.Timeout,
		RetryCount:  cfg.Connect.RetryCount,
		RetryDelay:  cfg.Connect.RetryDelay,
		FaviconHash: cfg.Connect.FaviconHash,
		UserAgent:   cfg.Connect.UserAgent,
	}, log)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrConfig, err)
	}

	var enricher pipeline.DomainEnricher
	if cfg.Whois.Enabled {
		cache, closeCache := openCache(cfg, scanLog, log)
		defer closeCache()
		e, err := domaininfo.NewEnricher(transport, cfg.Whois.Timeout, cache, log)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrConfig, err)
		}
		enricher = e
	}

	hunter := pipeline.NewHunter(
		core.NewLineParser(patterns),
		core.NewRefererFilter(patterns),
		prober,
		enricher,
		sink,
		log,
	)

	if !opts.noProgress {
		bar := newProgressBar(logFile)
		defer bar.Finish()
		hunter.SetProgressCallback(func(n int) { _ = bar.Add(n) })
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scanLog.WithField("log", opts.logFile).Info("scan started")
	stats, err := hunter.Run(ctx, logFile)
	scanLog.WithFields(logrus.Fields{
		"read":        utils.FormatBytes(stats.Bytes),
		"lines":       stats.Lines,
		"matched":     stats.Matched,
		"skipped":     stats.Skipped,
		"candidates":  stats.Candidates,
		"rows":        stats.Rows,
		"failed":      stats.Failed,
		"up":          stats.ByStatus[models.StatusUp],
		"removed":     stats.ByStatus[models.StatusRemoved],
		"down":        stats.ByStatus[models.StatusDown],
		"unreachable": stats.ByStatus[models.StatusUnreachable],
		"report":      opts.reportFile,
	}).Info("scan finished")
	return err
}

func openSinks(cfg *config.Config, path, scanID string, log *logrus.Entry) (report.Sink, error) {
	fileSink, err := report.OpenFile(path)
	if err != nil {
		return nil, err
	}
	if cfg.MongoDB.URI == "" {
		return fileSink, nil
	}

	client, err := database.ConnectMongoDB(&cfg.MongoDB)
	if err != nil {
		fileSink.Close()
		return nil, err
	}
	log.WithField("database", cfg.MongoDB.Database).Info("connected to MongoDB")
	return report.MultiSink{
		fileSink,
		report.NewMongoSink(client, cfg.MongoDB.Database, cfg.MongoDB.Collection, scanID),
	}, nil
}

// openCache returns a Redis backed cache when configured. A Redis outage
// only costs the cache.
func openCache(cfg *config.Config, entry *logrus.Entry, log *logrus.Logger) (domaininfo.Cache, func()) {
	if cfg.Cache.RedisAddr == "" {
		return nil, func() {}
	}
	client, err := database.ConnectRedis(&cfg.Cache)
	if err != nil {
		entry.WithError(err).Warn("whois cache disabled")
		return nil, func() {}
	}
	return domaininfo.NewRedisCache(client, cfg.Cache.TTL, log), func() { _ = database.CloseRedis(client) }
}

func newProgressBar(f *os.File) *progressbar.ProgressBar {
	size := int64(-1)
	if fi, err := f.Stat(); err == nil && fi.Mode().IsRegular() {
		size = fi.Size()
	}
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("scanning"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

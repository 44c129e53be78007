// cmd/get/main.go - command line front end for the get application installer.

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
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/windowsadmins/get/pkg/config"
	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/installer"
	"github.com/windowsadmins/get/pkg/logging"
	"github.com/windowsadmins/get/pkg/progress"
	"github.com/windowsadmins/get/pkg/version"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitCancelled = 130
)

type options struct {
	search     string
	install    []string
	uninstall  []string
	refresh    bool
	list       bool
	outdated   bool
	download   []string
	sha256     string
	clone      string
	cloneDir   string
	initConfig bool
	verbosity  int
	version    bool
	configPath string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("get", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.search, "search", "s", "", "Search all repositories for packages matching the query.")
	fs.StringSliceVarP(&opts.install, "install", "i", nil, "Install the named packages.")
	fs.StringSliceVarP(&opts.uninstall, "uninstall", "u", nil, "Uninstall the packages with these exact identifiers.")
	fs.BoolVar(&opts.refresh, "refresh", false, "Pull every repository and rebuild its index.")
	fs.BoolVarP(&opts.list, "list", "l", false, "List installed packages.")
	fs.BoolVar(&opts.outdated, "outdated", false, "List installed packages with newer versions available.")
	fs.StringSliceVarP(&opts.download, "download", "d", nil, "Download URLs into the download directory.")
	fs.StringVar(&opts.sha256, "sha256", "", "Expected SHA-256 of a single --download.")
	fs.StringVar(&opts.clone, "clone", "", "Clone a git repository.")
	fs.StringVar(&opts.cloneDir, "clone-dir", "", "Target directory for --clone.")
	fs.BoolVar(&opts.initConfig, "init-config", false, "Write the default configuration to --config and exit.")
	fs.CountVarP(&opts.verbosity, "verbose", "v", "Increase verbosity (e.g. -v, -vv)")
	fs.BoolVar(&opts.version, "version", false, "Print the version and exit.")
	fs.StringVar(&opts.configPath, "config", config.DefaultPath(), "Path to the configuration file.")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	// bare URLs are downloads, anything else is an install request
	for _, arg := range fs.Args() {
		if isURL(arg) {
			opts.download = append(opts.download, arg)
		} else {
			opts.install = append(opts.install, arg)
		}
	}
	if opts.sha256 != "" && len(opts.download) != 1 {
		return nil, fmt.Errorf("--sha256 needs exactly one download")
	}
	if opts.cloneDir != "" && opts.clone == "" {
		return nil, fmt.Errorf("--clone-dir needs --clone")
	}
	return opts, nil
}

func isURL(arg string) bool {
	lower := strings.ToLower(arg)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func (o *options) empty() bool {
	return o.search == "" && len(o.install) == 0 && len(o.uninstall) == 0 &&
		len(o.download) == 0 && o.clone == "" &&
		!o.refresh && !o.list && !o.outdated
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, commandLineArgs(os.Args[1:]), os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	if opts.version {
		if opts.verbosity > 0 {
			version.PrintFull(stdout)
		} else {
			version.Print(stdout)
		}
		return exitOK
	}
	if opts.initConfig {
		return initConfig(opts.configPath, stdout, stderr)
	}
	if opts.empty() {
		fmt.Fprintln(stderr, "nothing to do: use --search, --install, --uninstall, --download, --clone, --refresh, --list or --outdated")
		return exitUsage
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitFailure
	}

	// -v => INFO, -vv and above => DEBUG; otherwise the configured level
	switch {
	case opts.verbosity == 1:
		cfg.LogLevel = "INFO"
	case opts.verbosity >= 2:
		cfg.LogLevel = "DEBUG"
	}
	if err := logging.Init(cfg); err != nil {
		fmt.Fprintf(stderr, "Error initializing logger: %v\n", err)
		return exitFailure
	}
	defer logging.CloseLogger()
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	bar := progress.NewBar(stderr, "download")
	m := installer.NewManager(cfg, progress.Multi(bar.Func(), progress.Log("download")))

	err = execute(ctx, m, opts, stdout)
	switch {
	case err == nil:
		return exitOK
	case errs.Is(err, errs.KindCancelled):
		logging.Warn("Operation cancelled")
		return exitCancelled
	default:
		logging.Error("Operation failed", "error", err)
		if dir := logging.GetCurrentLogDir(); dir != "" {
			fmt.Fprintf(stderr, "See %s for details\n", dir)
		}
		return exitFailure
	}
}

// initConfig writes the default configuration to path unless a file is
// already there.
func initConfig(path string, stdout, stderr io.Writer) int {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(stderr, "Configuration %s already exists\n", path)
		return exitFailure
	}
	if err := config.SaveConfig(path, config.GetDefaultConfig()); err != nil {
		fmt.Fprintf(stderr, "Failed to write configuration: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "Wrote default configuration to %s\n", path)
	return exitOK
}

// execute performs the requested actions in a fixed order and stops at the
// first failure.
func execute(ctx context.Context, m *installer.Manager, opts *options, stdout io.Writer) error {
	if opts.refresh {
		n, err := m.Refresh(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Refreshed %d repositories\n", n)
	}

	if opts.search != "" {
		found, err := m.Search(ctx, opts.search)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "IDENTIFIER\tVERSION\tREPOSITORY\tDESCRIPTION")
		for _, e := range found {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Identifier, e.Version, e.SourceRepository, e.Description)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if opts.clone != "" {
		if err := m.Clone(ctx, opts.clone, opts.cloneDir); err != nil {
			return fmt.Errorf("cloning %s: %w", opts.clone, err)
		}
		fmt.Fprintf(stdout, "Cloned %s\n", opts.clone)
	}

	for _, u := range opts.download {
		path, err := m.Download(ctx, u, opts.sha256)
		if err != nil {
			return fmt.Errorf("downloading %s: %w", u, err)
		}
		fmt.Fprintf(stdout, "Downloaded %s\n", path)
	}

	for _, name := range opts.install {
		report, err := m.ResolveAndInstall(ctx, name)
		if err != nil {
			return fmt.Errorf("installing %s: %w", name, err)
		}
		if report.Passthrough {
			fmt.Fprintf(stdout, "Installed %s with %s\n", name, m.Passthrough)
			continue
		}
		fmt.Fprintf(stdout, "Installed %s %s from %s\n", report.Identifier, report.Version, report.Repository)
	}

	for _, name := range opts.uninstall {
		report, err := m.ResolveAndUninstall(ctx, name)
		if err != nil {
			return fmt.Errorf("uninstalling %s: %w", name, err)
		}
		fmt.Fprintf(stdout, "Uninstalled %s %s\n", report.Identifier, report.Version)
	}

	if opts.list {
		records, err := m.List()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "IDENTIFIER\tVERSION\tREPOSITORY\tINSTALLED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Identifier, r.Version, r.Repository, r.InstalledAt.Format("2006-01-02 15:04"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if opts.outdated {
		updates, err := m.Outdated(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "IDENTIFIER\tINSTALLED\tAVAILABLE")
		for _, u := range updates {
			fmt.Fprintf(w, "%s\t%s\t%s\n", u.Identifier, u.Version, u.Available)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/hbollon/go-edlib"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/reflens/internal/accounting"
	"github.com/standardbeagle/reflens/internal/config"
	"github.com/standardbeagle/reflens/internal/debug"
	"github.com/standardbeagle/reflens/internal/engine"
	"github.com/standardbeagle/reflens/internal/index"
	"github.com/standardbeagle/reflens/internal/mcp"
	"github.com/standardbeagle/reflens/internal/types"
	"github.com/standardbeagle/reflens/internal/version"
	"github.com/standardbeagle/reflens/internal/watch"
)

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	configPath := c.String("config")

	// If root is specified and config path is default, look for config in root directory
	if rootFlag := c.String("root"); rootFlag != "" && configPath == ".reflens.kdl" {
		configPath = filepath.Join(rootFlag, ".reflens.kdl")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Exclude = append(cfg.Exclude, excludeFlags...)
	}
	if rootFlag := c.String("root"); rootFlag != "" {
		absRoot, err := filepath.Abs(rootFlag)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", rootFlag, err)
		}
		cfg.Project.Root = absRoot
	}
	if c.IsSet("include-imports") {
		cfg.Accounting.IncludeImports = c.Bool("include-imports")
	}

	return cfg, nil
}

func main() {
	app := &cli.App{
		Name:                   "reflens",
		Usage:                  "Symbol reference accounting: usage counts and unused-symbol detection for your workspace",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (.kdl or .toml)",
				Value:   ".reflens.kdl",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns (e.g., --exclude '**/testdata/**')",
			},
			&cli.BoolFlag{
				Name:  "include-imports",
				Usage: "Count import-style references as usage",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Write debug output to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				debug.EnableDebug = "true"
				debug.SetDebugOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			scanCommand(),
			countCommand(),
			watchCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Scan the workspace and report unused symbols",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress progress output",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}
			eng, err := engine.New(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := signalContext()
			if err := eng.RebuildIndex(ctx); err != nil && ctx.Err() == nil {
				return err
			}

			var reporter index.ProgressReporter = index.NopReporter{}
			if !c.Bool("quiet") {
				reporter = &consoleReporter{ctx: ctx}
			}
			unused := eng.UnusedSymbols(ctx, reporter)

			sort.Slice(unused, func(i, j int) bool {
				a, b := unused[i].Symbol, unused[j].Symbol
				if a.File != b.File {
					return a.File < b.File
				}
				return a.Selection.Before(b.Selection)
			})

			if len(unused) == 0 {
				fmt.Println("No unused symbols found.")
				return nil
			}
			fmt.Printf("%d unused symbols:\n", len(unused))
			for _, info := range unused {
				sym := info.Symbol
				fmt.Printf("  %s:%d  %s %s\n", sym.File, sym.Selection.Line+1, sym.Kind, sym.Name)
			}
			return nil
		},
	}
}

func countCommand() *cli.Command {
	return &cli.Command{
		Name:      "count",
		Usage:     "Show per-symbol usage counts for a file",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "symbol",
				Aliases: []string{"s"},
				Usage:   "Only report this symbol",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one file argument")
			}
			path, err := filepath.Abs(c.Args().First())
			if err != nil {
				return err
			}

			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}
			eng, err := engine.New(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := signalContext()
			accounts, err := eng.FileAccounts(ctx, types.FileID(path))
			if err != nil {
				return err
			}

			if name := c.String("symbol"); name != "" {
				return printOneSymbol(accounts, name)
			}

			for _, account := range accounts {
				printAccount(account)
			}
			return nil
		},
	}
}

// printOneSymbol reports a single symbol, suggesting the closest name when
// the requested one does not exist in the file.
func printOneSymbol(accounts []accounting.SymbolAccount, name string) error {
	names := make([]string, 0, len(accounts))
	for _, account := range accounts {
		if account.Symbol.Name == name {
			printAccount(account)
			return nil
		}
		names = append(names, account.Symbol.Name)
	}

	if suggestion, err := edlib.FuzzySearchThreshold(name, names, 0.6, edlib.Levenshtein); err == nil && suggestion != "" {
		return fmt.Errorf("no symbol %q in file; did you mean %q?", name, suggestion)
	}
	return fmt.Errorf("no symbol %q in file", name)
}

func printAccount(account accounting.SymbolAccount) {
	imports := 0
	for _, ref := range account.Classified {
		if ref.Class == types.ClassImport {
			imports++
		}
	}
	fmt.Printf("%5d  %-8s %s (line %d, %d raw refs, %d imports)\n",
		account.Count, account.Symbol.Kind, account.Symbol.Name,
		account.Symbol.Selection.Line+1, len(account.Raw), imports)
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Index the workspace and keep counts fresh as files change",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}
			eng, err := engine.New(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := signalContext()
			if err := eng.RebuildIndex(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			fmt.Printf("Indexed %d symbols. Watching %s...\n", eng.Index().SymbolCount(), cfg.Project.Root)

			eng.OnUpdated(func(file types.FileID) {
				fmt.Printf("updated %s\n", file)
			})

			watcher, err := watch.NewWatcher(cfg, eng)
			if err != nil {
				return err
			}
			if err := watcher.Start(); err != nil {
				return err
			}
			defer watcher.Stop()

			<-ctx.Done()
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run as an MCP stdio server",
		Action: func(c *cli.Context) error {
			debug.SetMCPMode(true)

			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}
			eng, err := engine.New(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := signalContext()

			// Index in the background; tools answer from whatever has been
			// collected so far.
			go func() {
				if err := eng.RebuildIndex(ctx); err != nil {
					debug.LogIndex("initial rebuild: %v\n", err)
				}
			}()

			return mcp.NewServer(eng).Start(ctx)
		},
	}
}

// consoleReporter prints scan progress and cancels on interrupt.
type consoleReporter struct {
	ctx  context.Context
	last int
}

func (r *consoleReporter) Progress(done, total int) {
	if total == 0 {
		return
	}
	pct := done * 100 / total
	if pct/10 > r.last/10 {
		fmt.Fprintf(os.Stderr, "  ... %d%% (%d/%d symbols)\n", pct, done, total)
	}
	r.last = pct
}

func (r *consoleReporter) Cancelled() bool {
	return r.ctx.Err() != nil
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}

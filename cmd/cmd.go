package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/eejs2py/eejs2py/config"
	"github.com/eejs2py/eejs2py/remote"
	"github.com/eejs2py/eejs2py/transpile"
)

// Execute runs the eejs2py CLI with the given version string.
func Execute(version string) {
	cmd := New(version, os.Stdout, os.Stderr)
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// New builds the command tree writing to stdout and stderr.
func New(version string, stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:                   "eejs2py",
		Usage:                  "Translate Earth Engine JavaScript scripts and modules to Python",
		Version:                version,
		UseShortOptionHandling: true,
		Writer:                 stdout,
		ErrWriter:              stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to " + config.FileName + " (default: searched from the working directory)",
			},
			&cli.StringFlag{
				Name:  "module-dir",
				Usage: "Module cache directory (default: $EEJS2PY_MODULE_DIR or ~/.eejs2py/modules)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log debug output to stderr",
			},
			&cli.BoolFlag{
				Name:    "no-color",
				Aliases: []string{"C"},
				Usage:   "Disable ANSI color output",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "translate",
				Usage:     "Translate a script to Python",
				ArgsUsage: "<file.js | ->",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the translation to this file instead of stdout",
					},
					&cli.BoolFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Run the configured formatter on the output",
					},
					&cli.BoolFlag{
						Name:    "resolve",
						Aliases: []string{"r"},
						Usage:   "Inline installed modules named by require() before translating",
					},
				},
				Action: translateAction,
			},
			{
				Name:      "batch",
				Usage:     "Translate every .js file below a directory",
				ArgsUsage: "<dir>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "Write .py files below this directory instead of next to the sources",
					},
					&cli.IntFlag{
						Name:    "jobs",
						Aliases: []string{"j"},
						Usage:   "Files translated in parallel",
						Value:   4,
					},
					&cli.BoolFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Run the configured formatter on each output",
					},
				},
				Action: batchAction,
			},
			{
				Name:      "install",
				Usage:     "Fetch modules and their dependencies into the cache",
				ArgsUsage: "<module>...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "update",
						Aliases: []string{"u"},
						Usage:   "Fetch again even if already installed",
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Only print errors",
					},
					&cli.BoolFlag{
						Name:  "frozen",
						Usage: "Fail if a module disagrees with " + remote.LockFileName,
					},
				},
				Action: installAction,
			},
			{
				Name:      "uninstall",
				Usage:     "Remove modules from the cache",
				ArgsUsage: "<module>...",
				Action:    uninstallAction,
			},
			{
				Name:      "require",
				Usage:     "Resolve an installed module and list its exports",
				ArgsUsage: "<module>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "frozen",
						Usage: "Fail if a module disagrees with " + remote.LockFileName,
					},
					&cli.BoolFlag{
						Name:  "emit",
						Usage: "Print the translated module instead of its exports",
					},
				},
				Action: requireAction,
			},
			{
				Name:   "list",
				Usage:  "List installed modules",
				Action: listAction,
			},
		},
	}
}

// app is the state shared by every command.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	out    *printer
	stdout io.Writer
}

func setup(cmd *cli.Command) (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if p := cmd.String("config"); p != "" {
		cfg, err = config.Load(p)
	} else {
		cfg, err = config.Discover(".")
	}
	if err != nil {
		return nil, err
	}

	root := cmd.Root()
	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(root.ErrWriter, &slog.HandlerOptions{Level: level}))
	if cfg.Path != "" {
		log.Debug("loaded configuration", "path", cfg.Path)
	}

	return &app{
		cfg:    cfg,
		log:    log,
		out:    newPrinter(root.ErrWriter, colorEnabled(root.ErrWriter, cmd.Bool("no-color"))),
		stdout: root.Writer,
	}, nil
}

func (a *app) translateOptions(format bool) transpile.Options {
	return transpile.Options{
		RunFormatter: format || a.cfg.Translate.Formatter,
		Formatter:    a.cfg.Formatter(),
		Logger:       a.log,
	}
}

// resolver opens the module cache. Lock files are read from the working
// directory when modules.lock is set or frozen is requested.
func (a *app) resolver(cmd *cli.Command, frozen bool) (*remote.Resolver, error) {
	dir, err := a.cfg.ModuleDir(cmd.String("module-dir"))
	if err != nil {
		return nil, err
	}
	a.log.Debug("module cache", "dir", dir)
	r := remote.NewResolver(remote.NewStore(dir), a.cfg.Fetcher())
	r.Jobs = a.cfg.Modules.Jobs
	r.Frozen = frozen
	r.Logger = a.log
	r.Translate = a.translateOptions(false)
	if a.cfg.Modules.Lock || frozen {
		if err := r.InitLockFromDir("."); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// closeFetcher releases clones held by a git fetcher.
func closeFetcher(r *remote.Resolver) {
	if c, ok := r.Fetcher.(io.Closer); ok {
		c.Close()
	}
}

func parseIDs(cmd *cli.Command, usage string) ([]remote.ModuleID, error) {
	if cmd.NArg() < 1 {
		return nil, fmt.Errorf("usage: eejs2py %s", usage)
	}
	var ids []remote.ModuleID
	for _, arg := range cmd.Args().Slice() {
		id, err := remote.ParseModuleID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func translateAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("usage: eejs2py translate [-o output] [--format] [--resolve] <file.js | ->")
	}
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	path := cmd.Args().First()
	opts := a.translateOptions(cmd.Bool("format"))

	var py string
	if cmd.Bool("resolve") && path != "-" {
		r, err := a.resolver(cmd, false)
		if err != nil {
			return err
		}
		defer closeFetcher(r)
		r.Translate = opts
		if _, py, err = r.ResolveFile(ctx, path); err != nil {
			return err
		}
	} else {
		var src []byte
		if path == "-" {
			src, err = io.ReadAll(os.Stdin)
		} else {
			src, err = os.ReadFile(path)
		}
		if err != nil {
			return err
		}
		if py, err = transpile.TranslateContext(ctx, string(src), opts); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if out := cmd.String("output"); out != "" {
		if err := os.WriteFile(out, []byte(py), 0o644); err != nil {
			return err
		}
		a.out.ok("wrote", out)
		return nil
	}
	_, err = io.WriteString(a.stdout, py)
	return err
}

func batchAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("usage: eejs2py batch [--out dir] [-j jobs] <dir>")
	}
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	root := cmd.Args().First()
	files, err := discover(root)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .js files found in %s", root)
	}
	out := cmd.String("out")
	if out == "" {
		out = root
	}

	results := translateTree(ctx, root, out, files, a.translateOptions(cmd.Bool("format")), int(cmd.Int("jobs")))
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			a.out.fail("failed", fmt.Sprintf("%s: %v", res.Path, res.Err))
			continue
		}
		a.log.Debug("translated", "file", res.Path, "output", res.Output)
	}
	summary := fmt.Sprintf("%d files, %d translated, %d failed", len(results), len(results)-failed, failed)
	if failed > 0 {
		a.out.fail("batch", summary)
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	a.out.ok("batch", summary)
	return nil
}

func installAction(ctx context.Context, cmd *cli.Command) error {
	ids, err := parseIDs(cmd, "install [--update] [--quiet] <module>...")
	if err != nil {
		return err
	}
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	r, err := a.resolver(cmd, cmd.Bool("frozen"))
	if err != nil {
		return err
	}
	defer closeFetcher(r)
	quiet := cmd.Bool("quiet")

	for _, id := range ids {
		if !quiet {
			a.out.info("install", id.String())
		}
		res, err := r.Install(ctx, id, remote.InstallOptions{Update: cmd.Bool("update")})
		if err != nil {
			return err
		}
		if quiet {
			continue
		}
		for _, m := range res {
			if m.Fetched {
				a.out.ok("fetched", m.ID.String())
			} else {
				a.out.info("cached", m.ID.String())
			}
		}
	}
	return nil
}

func uninstallAction(ctx context.Context, cmd *cli.Command) error {
	ids, err := parseIDs(cmd, "uninstall <module>...")
	if err != nil {
		return err
	}
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	r, err := a.resolver(cmd, false)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.Uninstall(id); err != nil {
			return err
		}
		a.out.ok("removed", id.String())
	}
	return nil
}

func requireAction(ctx context.Context, cmd *cli.Command) error {
	ids, err := parseIDs(cmd, "require [--emit] <module>")
	if err != nil {
		return err
	}
	if len(ids) != 1 {
		return fmt.Errorf("usage: eejs2py require [--emit] <module>")
	}
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	r, err := a.resolver(cmd, cmd.Bool("frozen"))
	if err != nil {
		return err
	}
	ex, err := r.Resolve(ctx, ids[0])
	if err != nil {
		return err
	}
	if cmd.Bool("emit") {
		_, err = io.WriteString(a.stdout, ex.Script)
		return err
	}
	if ex.Len() == 0 {
		a.out.warn("exports", ids[0].String()+" exports nothing")
		return nil
	}
	renderExports(a.stdout, ex)
	return nil
}

func listAction(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	r, err := a.resolver(cmd, false)
	if err != nil {
		return err
	}
	metas, err := r.Installed()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		a.out.info("list", "no modules installed in "+strings.TrimSuffix(r.Store.Root, "/"))
		return nil
	}
	renderModules(a.stdout, metas)
	return nil
}

// Command sinew evaluates a rig script, builds every requested module into
// an in-memory scene and prints a YAML report of the published modules.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chazu/sinew/pkg/config"
	"github.com/chazu/sinew/pkg/logs"
	"github.com/chazu/sinew/pkg/rig"
	"github.com/chazu/sinew/pkg/scene"
	"github.com/chazu/sinew/pkg/scene/memory"
)

// options holds the command line arguments.
type options struct {
	inputPath   string
	configPaths []string
	logLevel    string
	detail      string
	noDecompose bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes one CLI invocation.
func run(args []string, out io.Writer, errOut io.Writer) error {
	opts, err := parseOptions(args, errOut)
	if err != nil {
		return err
	}

	settings, err := config.Load(opts.configPaths...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.detail != "" {
		settings.Detail = opts.detail
	}
	level, err := logs.ParseLevel(opts.logLevel)
	if err != nil {
		return fmt.Errorf("log level %q: %w", opts.logLevel, err)
	}
	log := logs.New(errOut, level)

	source, err := os.ReadFile(opts.inputPath)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	var appOpts []AppOption
	if opts.noDecompose {
		appOpts = append(appOpts, WithSceneOptions(memory.WithoutCapability(scene.CapDecomposeMatrix)))
	}
	app := NewApp(settings, log, appOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report := app.Evaluate(ctx, string(source))
	if err := report.WriteYAML(out); err != nil {
		return err
	}
	if len(report.Errors) > 0 {
		return fmt.Errorf("%s: %d error(s)", opts.inputPath, len(report.Errors))
	}
	return nil
}

// parseOptions reads the command line.
func parseOptions(args []string, errOut io.Writer) (options, error) {
	fs := flag.NewFlagSet("sinew", flag.ContinueOnError)
	fs.SetOutput(errOut)

	in := fs.String("in", "", "rig script path")
	cfg := fs.String("config", "", "comma separated CUE settings files")
	level := fs.String("log-level", "warn", "debug, info, warn or error")
	detail := fs.String("detail", "", "detail level for modules that offer one: "+rig.DetailComplete+" or "+rig.DetailSimple)
	noDecompose := fs.Bool("no-decompose", false, "build without the matrix decomposition capability")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if *in == "" && fs.NArg() > 0 {
		*in = fs.Arg(0)
	}
	if *in == "" {
		return options{}, fmt.Errorf("no rig script given (-in)")
	}
	switch *detail {
	case "", rig.DetailComplete, rig.DetailSimple:
	default:
		return options{}, fmt.Errorf("invalid detail %q, expected %s or %s", *detail, rig.DetailComplete, rig.DetailSimple)
	}

	var paths []string
	for _, p := range strings.Split(*cfg, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return options{
		inputPath:   *in,
		configPaths: paths,
		logLevel:    *level,
		detail:      *detail,
		noDecompose: *noDecompose,
	}, nil
}

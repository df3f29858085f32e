package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/chazu/sinew/pkg/config"
	"github.com/chazu/sinew/pkg/engine"
	"github.com/chazu/sinew/pkg/graph"
	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/hook"
	"github.com/chazu/sinew/pkg/logs"
	"github.com/chazu/sinew/pkg/modules"
	"github.com/chazu/sinew/pkg/rig"
	"github.com/chazu/sinew/pkg/scene/memory"
)

// App runs the whole pipeline for one script: evaluate, place guides in a
// fresh scene, build and report.
type App struct {
	engine    *engine.Engine
	settings  config.Settings
	log       *slog.Logger
	sceneOpts []memory.Option
	prompt    rig.Prompter
}

// AppOption configures an App.
type AppOption func(*App)

// WithSceneOptions passes options to every scene the App creates.
func WithSceneOptions(opts ...memory.Option) AppOption {
	return func(a *App) { a.sceneOpts = append(a.sceneOpts, opts...) }
}

// WithPrompter answers detail prompts. Without one the configured detail
// level is used.
func WithPrompter(p rig.Prompter) AppOption {
	return func(a *App) { a.prompt = p }
}

// ErrorData is a script or build error in the report.
type ErrorData struct {
	Line    int    `yaml:"line,omitempty"`
	Message string `yaml:"message"`
}

// Report is the YAML document printed after a run.
type Report struct {
	Modules  []hook.Descriptor `yaml:"modules"`
	Guides   []string          `yaml:"guides,omitempty"`
	Warnings []string          `yaml:"warnings,omitempty"`
	Errors   []ErrorData       `yaml:"errors,omitempty"`
	Canceled bool              `yaml:"canceled,omitempty"`
	Nodes    int               `yaml:"nodes"`
}

// WriteYAML encodes r to w.
func (r Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// NewApp creates an App using settings.
func NewApp(settings config.Settings, log *slog.Logger, opts ...AppOption) *App {
	log = logs.OrDiscard(log)
	a := &App{
		engine:   engine.NewEngine(engine.WithTimeout(settings.Timeout()), engine.WithLogger(log)),
		settings: settings,
		log:      log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Evaluate runs source through the pipeline. Problems are reported, not
// returned.
func (a *App) Evaluate(ctx context.Context, source string) (report Report) {
	report = Report{Modules: []hook.Descriptor{}}

	s, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		a.log.Error("evaluate", "err", err)
		report.Errors = append(report.Errors, ErrorData{Message: err.Error()})
		return report
	}
	for _, e := range evalErrs {
		report.Errors = append(report.Errors, ErrorData{Line: e.Line, Message: e.Message})
	}
	if len(report.Errors) > 0 {
		return report
	}

	types := modules.NewRegistry()
	for _, f := range graph.Validate(s, types.Tags()) {
		if f.Severity == graph.SeverityWarning {
			report.Warnings = append(report.Warnings, f.Error())
			continue
		}
		report.Errors = append(report.Errors, ErrorData{Message: f.Error()})
	}
	if len(report.Errors) > 0 {
		return report
	}

	eng := memory.New(a.sceneOpts...)
	b := rig.NewBuilder(eng, types,
		rig.WithConfig(a.settings),
		rig.WithLogger(a.log),
		rig.WithPrompter(a.prompt),
	)
	defer func() {
		report.Modules = append(report.Modules, b.Hooks().All()...)
		report.Nodes = eng.Count()
	}()

	guides, err := place(ctx, b, s)
	if err != nil {
		report.Errors = append(report.Errors, ErrorData{Message: err.Error()})
		return report
	}

	targets, err := graph.BuildSet(s)
	if err != nil {
		report.Errors = append(report.Errors, ErrorData{Message: err.Error()})
		return report
	}
	build := make([]*guide.Guide, 0, len(targets))
	for _, n := range targets {
		build = append(build, guides[n.Name])
	}

	results, err := b.BuildAll(ctx, build...)
	for _, res := range results {
		collect(&report, res)
	}
	if err != nil {
		report.Errors = append(report.Errors, ErrorData{Message: err.Error()})
	}
	for _, g := range b.Guides() {
		if eng.Exists(g.Root()) {
			report.Guides = append(report.Guides, g.Key())
		}
	}
	return report
}

// place creates every declared guide, parents first, and returns them by
// script name.
func place(ctx context.Context, b *rig.Builder, s *graph.Script) (map[string]*guide.Guide, error) {
	nodes, err := graph.Order(s)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]string, len(nodes))
	guides := make(map[string]*guide.Guide, len(nodes))
	for _, n := range nodes {
		g, err := b.NewGuide(ctx, n.Type, n.Custom, n.Resolve(keys))
		if err != nil {
			return guides, fmt.Errorf("guide %s: %w", n.Name, err)
		}
		keys[n.Name] = g.Key()
		guides[n.Name] = g
	}
	return guides, nil
}

func collect(report *Report, res *rig.Result) {
	for _, w := range res.Warnings {
		report.Warnings = append(report.Warnings, res.Key+": "+w)
	}
	if res.Canceled {
		report.Canceled = true
	}
	for _, c := range res.Children {
		collect(report, c)
	}
}

// Package rig sequences the compilation of guides into rigs. A Builder owns
// the module type registry, the hook registry and the instance allocator,
// and runs every module through the same state machine:
//
//	GuideExists -> DependencyCheck -> MirrorExpand -> PerSideBuild
//	  -> Integrate -> GuideTeardown -> Rigged
//
// with Aborted reachable from every state before Rigged.
package rig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/samber/lo"

	"github.com/chazu/sinew/pkg/config"
	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/hook"
	"github.com/chazu/sinew/pkg/logs"
	"github.com/chazu/sinew/pkg/mirror"
	"github.com/chazu/sinew/pkg/proxy"
	"github.com/chazu/sinew/pkg/scene"
)

// State is a step of a module build.
type State int

const (
	GuideExists State = iota
	DependencyCheck
	MirrorExpand
	PerSideBuild
	Integrate
	GuideTeardown
	Rigged
	Aborted
)

func (s State) String() string {
	switch s {
	case GuideExists:
		return "GuideExists"
	case DependencyCheck:
		return "DependencyCheck"
	case MirrorExpand:
		return "MirrorExpand"
	case PerSideBuild:
		return "PerSideBuild"
	case Integrate:
		return "Integrate"
	case GuideTeardown:
		return "GuideTeardown"
	case Rigged:
		return "Rigged"
	case Aborted:
		return "Aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result reports one module build.
type Result struct {
	Key        string
	State      State
	Trace      []State
	Descriptor *hook.Descriptor
	Detail     string
	// Canceled is set when the user canceled at a prompt or the context
	// was canceled.
	Canceled bool
	Warnings []string
	// Children are modules built from this module's integration step.
	Children []*Result
}

func (r *Result) enter(s State) {
	r.State = s
	r.Trace = append(r.Trace, s)
}

// Option configures a Builder.
type Option func(*Builder)

// WithConfig sets the build settings.
func WithConfig(s config.Settings) Option { return func(b *Builder) { b.config = s } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(b *Builder) { b.log = logs.OrDiscard(l) } }

// WithPrompter sets the prompter asked for detail levels.
func WithPrompter(p Prompter) Option { return func(b *Builder) { b.prompt = p } }

// WithValues sets the live value source.
func WithValues(v ValueSource) Option { return func(b *Builder) { b.values = v } }

// WithHooks shares a hook registry between builders.
func WithHooks(h *hook.Registry) Option { return func(b *Builder) { b.hooks = h } }

// WithAllocator shares an instance allocator between builders.
func WithAllocator(a *Allocator) Option { return func(b *Builder) { b.alloc = a } }

// WithProxies sets the proxy tessellator used for mirror previews.
func WithProxies(p *proxy.Builder) Option { return func(b *Builder) { b.proxies = p } }

// Builder compiles guides into rigs.
type Builder struct {
	eng     scene.Engine
	types   *Registry
	hooks   *hook.Registry
	alloc   *Allocator
	prompt  Prompter
	values  ValueSource
	config  config.Settings
	log     *slog.Logger
	proxies *proxy.Builder

	resolver *mirror.Resolver
	guides   map[string]*guide.Guide
	order    []string
}

// NewBuilder returns a builder over eng for the given module types.
func NewBuilder(eng scene.Engine, types *Registry, opts ...Option) *Builder {
	b := &Builder{
		eng:    eng,
		types:  types,
		hooks:  hook.NewRegistry(),
		alloc:  NewAllocator(),
		config: config.Default(),
		log:    logs.Discard(),
		guides: map[string]*guide.Guide{},
	}
	for _, o := range opts {
		o(b)
	}
	if b.proxies == nil {
		b.proxies = proxy.New(b.config.Proxy.Cells)
	}
	b.resolver = mirror.NewResolver(eng, b.proxies, b.config.Proxy.Size, b.log)
	return b
}

// Hooks returns the hook registry.
func (b *Builder) Hooks() *hook.Registry { return b.hooks }

// Types returns the module type registry.
func (b *Builder) Types() *Registry { return b.types }

// Guide returns a tracked guide by instance key.
func (b *Builder) Guide(key string) (*guide.Guide, bool) {
	g, ok := b.guides[key]
	return g, ok
}

// Guides returns the tracked guides in creation order.
func (b *Builder) Guides() []*guide.Guide {
	return lo.FilterMap(b.order, func(k string, _ int) (*guide.Guide, bool) {
		g, ok := b.guides[k]
		return g, ok
	})
}

// ---------------------------------------------------------------------------
// Guides
// ---------------------------------------------------------------------------

// NewGuide creates the guide of a new module instance. With opts.Parent set
// the guide hangs under that guide's end locator. A mirrored guide gets a
// live preview; if the preview cannot be built the guide is removed again.
func (b *Builder) NewGuide(ctx context.Context, tag, name string, opts guide.Options) (*guide.Guide, error) {
	t, ok := b.types.Lookup(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	spec := t.Spec()
	if opts.Segments == 0 {
		opts.Segments = max(spec.MinSegments, 1)
	}
	if opts.Degree == 0 {
		opts.Degree = guide.Cubic
	}
	if opts.Mirror.Enabled() && opts.Names.IsZero() && len(b.config.Sides) == 2 {
		opts.Names = guide.NamePair{First: b.config.Sides[0], Second: b.config.Sides[1]}
	}
	if d, ok := t.(Defaulter); ok {
		opts = d.Defaults(opts)
	}
	parent := scene.None
	if opts.Parent != "" {
		pg, ok := b.guides[opts.Parent]
		if !ok || !b.eng.Exists(pg.End()) {
			return nil, fmt.Errorf("%w: parent guide %q", ErrNoGuide, opts.Parent)
		}
		parent = pg.End()
	}

	g := guide.New(tag, b.alloc.Next(tag), name, opts)
	if err := g.Build(b.eng, parent, b.config.Spacing, spec); err != nil {
		return nil, fmt.Errorf("create %s guide: %w", tag, err)
	}
	if _, err := b.resolver.Inherit(g); err != nil {
		return nil, errors.Join(err, g.Delete(b.eng))
	}
	if _, err := b.resolver.Refresh(g); err != nil {
		return nil, errors.Join(err, g.Delete(b.eng))
	}
	b.track(g)
	b.log.InfoContext(logs.WithModule(ctx, g.Key()), "guide created", "guide", g.Describe())
	return g, nil
}

// Adopt tracks a guide that already exists in the scene and reserves its
// instance number.
func (b *Builder) Adopt(root scene.NodeID) (*guide.Guide, error) {
	tag, err := b.eng.String(scene.P(root, guide.AttrModuleType))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", guide.ErrNotGuide, root)
	}
	t, ok := b.types.Lookup(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	g, err := guide.Load(b.eng, root, t.Spec())
	if err != nil {
		return nil, err
	}
	b.alloc.Observe(tag, g.Instance)
	b.track(g)
	return g, nil
}

func (b *Builder) track(g *guide.Guide) {
	if _, ok := b.guides[g.Key()]; !ok {
		b.order = append(b.order, g.Key())
	}
	b.guides[g.Key()] = g
}

// SetMirror edits a guide's mirror settings and refreshes its preview.
// Guides nested under g inherit the new settings.
func (b *Builder) SetMirror(g *guide.Guide, axis guide.MirrorAxis, names guide.NamePair, flip bool) error {
	if err := g.SetMirror(b.eng, axis, names, flip); err != nil {
		return err
	}
	if _, err := b.resolver.Refresh(g); err != nil {
		return err
	}
	return b.propagate(g)
}

// propagate re-runs inheritance on every guide nested below g.
func (b *Builder) propagate(g *guide.Guide) error {
	nested, err := g.Nested(b.eng)
	if err != nil {
		return err
	}
	for _, root := range nested {
		child, ok := b.byRoot(root)
		if !ok {
			continue
		}
		if _, err := b.resolver.Inherit(child); err != nil {
			return err
		}
		if _, err := b.resolver.Refresh(child); err != nil {
			return err
		}
		if err := b.propagate(child); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) byRoot(root scene.NodeID) (*guide.Guide, bool) {
	return lo.Find(b.Guides(), func(g *guide.Guide) bool { return g.Root() == root })
}

// Resize changes a guide's segment count and refreshes its preview.
func (b *Builder) Resize(g *guide.Guide, segments int) error {
	t, ok := b.types.Lookup(g.Type)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, g.Type)
	}
	if err := g.Resize(b.eng, segments, b.config.Spacing, t.Spec()); err != nil {
		return err
	}
	_, err := b.resolver.Refresh(g)
	return err
}

// Preview returns the mirror preview of a guide, if any.
func (b *Builder) Preview(g *guide.Guide) (*mirror.Preview, bool) { return b.resolver.Preview(g) }

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// Build compiles one guide. Integrity problems and cancellation end in
// Aborted before the scene changes. A failure after mutation started
// deletes everything the build created, leaves the guide in place and
// returns a *MutationError.
func (b *Builder) Build(ctx context.Context, g *guide.Guide) (*Result, error) {
	res := &Result{Key: g.Key()}
	ctx = logs.WithModule(ctx, g.Key())
	log := b.log.With("module", g.Key())

	res.enter(GuideExists)
	if !b.eng.Exists(g.Root()) {
		res.enter(Aborted)
		return res, fmt.Errorf("%w: %s", ErrNoGuide, g.Root())
	}
	t, ok := b.types.Lookup(g.Type)
	if !ok {
		res.enter(Aborted)
		return res, &IntegrityError{Module: g.Key(), Types: []string{g.Type}}
	}
	if err := b.sync(g, t); err != nil {
		res.enter(Aborted)
		return res, err
	}

	res.enter(DependencyCheck)
	if err := b.checkDependencies(g, t); err != nil {
		res.enter(Aborted)
		log.WarnContext(ctx, "dependency check failed", "err", err)
		return res, err
	}
	detail, err := b.detail(ctx, g, t)
	if err != nil {
		res.enter(Aborted)
		if errors.Is(err, ErrCanceled) {
			res.Canceled = true
			log.InfoContext(ctx, "build canceled at prompt")
			return res, nil
		}
		res.Canceled = ctx.Err() != nil
		return res, fmt.Errorf("rig: %s: %w", g.Key(), err)
	}
	res.Detail = detail

	sess := NewSession(b.eng)
	fail := func(stage State, side string, err error) (*Result, error) {
		res.enter(Aborted)
		res.Canceled = errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		if derr := sess.Discard(); derr != nil {
			err = errors.Join(err, fmt.Errorf("discard: %w", derr))
		}
		log.ErrorContext(ctx, "build failed", "stage", stage, "side", side, "err", err)
		return res, &MutationError{Module: g.Key(), Stage: stage, Side: side, Err: err}
	}

	res.enter(MirrorExpand)
	if err := ctx.Err(); err != nil {
		res.enter(Aborted)
		res.Canceled = true
		return res, fmt.Errorf("rig: %s: %w", g.Key(), err)
	}
	mr := mirror.NewResolver(sess, nil, 0, log)
	exps, err := mr.Expand(g)
	if err != nil {
		return fail(MirrorExpand, "", err)
	}

	res.enter(PerSideBuild)
	desc := hook.Descriptor{Key: g.Key(), Type: g.Type, Name: g.Name}
	exports := map[string][]string{}
	var triads []hook.Triad
	for _, exp := range exps {
		if err := ctx.Err(); err != nil {
			return fail(PerSideBuild, exp.Side.Name, err)
		}
		sb, err := b.buildSide(ctx, sess, g, t, exp, detail, log)
		if err != nil {
			return fail(PerSideBuild, exp.Side.Name, err)
		}
		desc.Sides = append(desc.Sides, hook.FromTriad(exp.Side.Name, sb.Hooks))
		for _, k := range sortedExports(sb.exports) {
			exports[k] = append(exports[k], sb.exports[k]...)
		}
		res.Warnings = append(res.Warnings, sb.warnings...)
		triads = append(triads, sb.Hooks)
	}
	for _, k := range sortedExports(exports) {
		desc.Export(k, exports[k]...)
	}

	res.enter(Integrate)
	if err := ctx.Err(); err != nil {
		return fail(Integrate, "", err)
	}
	if err := b.integrate(ctx, sess, g, t, desc, triads, res, log); err != nil {
		return fail(Integrate, "", err)
	}
	res.Descriptor = &desc

	res.enter(GuideTeardown)
	if err := b.teardown(g, mr, exps); err != nil {
		// The module is published; a broken teardown leaves guide nodes
		// behind but the rig is usable.
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: guide teardown: %v", g.Key(), err))
		log.WarnContext(ctx, "guide teardown failed", "err", err)
	}
	sess.Commit()
	res.enter(Rigged)
	log.InfoContext(ctx, "module rigged", "sides", len(desc.Sides), "warnings", len(res.Warnings))
	return res, nil
}

// sync refreshes the guide's options from the scene or the live value
// source.
func (b *Builder) sync(g *guide.Guide, t ModuleType) error {
	if err := g.Sync(b.eng, t.Spec()); err != nil {
		return err
	}
	if !g.Options.UseUIValues || b.values == nil {
		return nil
	}
	opts, err := b.values.Options(g.Type, g.Options.Clone())
	if err != nil {
		return fmt.Errorf("rig: live values for %s: %w", g.Key(), err)
	}
	if err := opts.Validate(t.Spec()); err != nil {
		return err
	}
	g.Options = opts
	return nil
}

// checkDependencies reports every missing module type and every parent
// module that has not published its hooks yet.
func (b *Builder) checkDependencies(g *guide.Guide, t ModuleType) error {
	ie := &IntegrityError{Module: g.Key(), Types: b.types.Missing(t.Dependencies())}
	for _, key := range b.parentKeys(g) {
		if _, ok := b.hooks.Lookup(key); !ok {
			ie.Modules = append(ie.Modules, key)
		}
	}
	if len(ie.Types) == 0 && len(ie.Modules) == 0 {
		return nil
	}
	return ie
}

// RefParentHook is the reference naming the module whose control hook a
// module attaches to.
const RefParentHook = "parentHook"

func (b *Builder) parentKeys(g *guide.Guide) []string {
	var keys []string
	if g.Options.Parent != "" {
		keys = append(keys, g.Options.Parent)
	}
	if ref := g.Options.Refs[RefParentHook]; ref != "" && !slices.Contains(keys, ref) {
		keys = append(keys, ref)
	}
	return keys
}

func (b *Builder) detail(ctx context.Context, g *guide.Guide, t ModuleType) (string, error) {
	d, ok := t.(Detailed)
	if !ok {
		return "", nil
	}
	levels := d.DetailLevels()
	if b.prompt == nil {
		if slices.Contains(levels, b.config.Detail) {
			return b.config.Detail, nil
		}
		return levels[0], nil
	}
	choice, err := b.prompt.Choose(ctx, fmt.Sprintf("Detail level for %s", g.Key()), levels)
	if err != nil {
		return "", err
	}
	if !slices.Contains(levels, choice) {
		return "", fmt.Errorf("detail %q is not one of %v", choice, levels)
	}
	return choice, nil
}

func (b *Builder) buildSide(ctx context.Context, sess *Session, g *guide.Guide, t ModuleType, exp mirror.Expansion, detail string, log *slog.Logger) (*SideBuild, error) {
	triad, err := hook.Build(sess, exp.Side, g.Key(), scene.None)
	if err != nil {
		return nil, err
	}
	sb := &SideBuild{
		Eng:          sess,
		Guide:        g,
		Side:         exp.Side,
		Placeholders: exp.Placeholders,
		Hooks:        triad,
		Detail:       detail,
		Settings:     b.config,
		Log:          log.With("side", exp.Side.Label()),
	}
	if err := t.BuildRig(ctx, sb); err != nil {
		return nil, err
	}
	if err := hook.Audit(sess, triad); err != nil {
		return nil, err
	}
	sb.Log.DebugContext(ctx, "side built", "nodes", sess.Len())
	return sb, nil
}

// integrate publishes desc for the duration of the Integrate stage, so
// dependent builds started from it see the module. Any later failure
// withdraws it again.
func (b *Builder) integrate(ctx context.Context, sess *Session, g *guide.Guide, t ModuleType, desc hook.Descriptor, triads []hook.Triad, res *Result, log *slog.Logger) error {
	if err := b.hooks.Publish(desc); err != nil {
		return err
	}
	if err := b.attachAndIntegrate(ctx, sess, g, t, desc, triads, res, log); err != nil {
		b.hooks.Withdraw(desc.Key)
		return err
	}
	return nil
}

func (b *Builder) attachAndIntegrate(ctx context.Context, sess *Session, g *guide.Guide, t ModuleType, desc hook.Descriptor, triads []hook.Triad, res *Result, log *slog.Logger) error {
	if keys := b.parentKeys(g); len(keys) > 0 {
		parent, _ := b.hooks.Lookup(keys[0])
		if err := attach(sess, desc, parent); err != nil {
			return err
		}
		log.DebugContext(ctx, "attached", "parent", keys[0])
	}
	it, ok := t.(Integrator)
	if !ok {
		return nil
	}
	in := &Integration{Eng: sess, Guide: g, Descriptor: desc, Hooks: triads, Log: log, builder: b, result: res}
	return it.Integrate(ctx, in)
}

// teardown removes the preview, the mirrored working copies and the guide.
func (b *Builder) teardown(g *guide.Guide, mr *mirror.Resolver, exps []mirror.Expansion) error {
	return errors.Join(
		b.resolver.RemovePreview(g),
		mr.Discard(exps),
		g.Delete(b.eng),
	)
}

// BuildAll builds guides that still exist and are not built yet, parents
// before children. Without arguments every tracked guide is built. It stops
// at the first error or cancellation.
func (b *Builder) BuildAll(ctx context.Context, guides ...*guide.Guide) ([]*Result, error) {
	if len(guides) == 0 {
		guides = b.Guides()
	}
	var out []*Result
	for _, g := range b.buildOrder(guides) {
		if !b.eng.Exists(g.Root()) {
			continue
		}
		if _, done := b.hooks.Lookup(g.Key()); done {
			continue
		}
		res, err := b.Build(ctx, g)
		out = append(out, res)
		if err != nil {
			return out, err
		}
		if res.Canceled {
			return out, nil
		}
	}
	return out, nil
}

func (b *Builder) buildOrder(guides []*guide.Guide) []*guide.Guide {
	want := lo.SliceToMap(guides, func(g *guide.Guide) (string, bool) { return g.Key(), true })
	var out []*guide.Guide
	placed := map[string]bool{}
	var visit func(g *guide.Guide, depth int)
	visit = func(g *guide.Guide, depth int) {
		if placed[g.Key()] || depth > len(guides) {
			return
		}
		for _, key := range b.parentKeys(g) {
			if p, ok := b.guides[key]; ok && want[key] {
				visit(p, depth+1)
			}
		}
		placed[g.Key()] = true
		out = append(out, g)
	}
	for _, g := range guides {
		visit(g, 0)
	}
	return out
}

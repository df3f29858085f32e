package mirror

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/logs"
	"github.com/chazu/sinew/pkg/proxy"
	"github.com/chazu/sinew/pkg/scene"
	"github.com/chazu/sinew/pkg/xform"
)

// Expansion is one side of a guide ready for the chain builders.
type Expansion struct {
	Side         Side
	Placeholders []scene.NodeID
	// Work is the group holding the mirrored working copy. It is None for
	// the authored side, whose placeholders are the guide's own.
	Work scene.NodeID
}

// Resolver computes mirrored sides and previews.
type Resolver struct {
	eng       scene.Engine
	proxies   *proxy.Builder
	proxySize float64
	log       *slog.Logger
	previews  map[string]*Preview
}

// NewResolver returns a resolver. proxies may be nil, in which case preview
// shapes are left as duplicated.
func NewResolver(eng scene.Engine, proxies *proxy.Builder, proxySize float64, log *slog.Logger) *Resolver {
	return &Resolver{
		eng:       eng,
		proxies:   proxies,
		proxySize: proxySize,
		log:       logs.OrDiscard(log),
		previews:  map[string]*Preview{},
	}
}

// Inherit forces g's mirror settings to those of its nearest mirrored
// ancestor guide and locks them. It returns the ancestor's root, or None
// when no ancestor is mirrored, in which case a stale lock is released.
func (r *Resolver) Inherit(g *guide.Guide) (scene.NodeID, error) {
	cur, err := r.eng.Parent(g.Root())
	if err != nil {
		return scene.None, err
	}
	for ; !cur.IsZero(); cur, err = r.eng.Parent(cur) {
		if err != nil {
			return scene.None, err
		}
		if !guide.IsRoot(r.eng, cur) {
			continue
		}
		axis, err := r.eng.Attr(scene.P(cur, guide.AttrMirrorAxis))
		if err != nil {
			return scene.None, err
		}
		if guide.MirrorAxis(axis) == guide.MirrorOff {
			continue
		}
		names, err := r.eng.String(scene.P(cur, guide.AttrMirrorName))
		if err != nil {
			return scene.None, err
		}
		pair, err := guide.ParseNamePair(names)
		if err != nil {
			return scene.None, fmt.Errorf("ancestor %s: %w", cur, err)
		}
		flip, err := r.eng.Attr(scene.P(cur, guide.AttrFlip))
		if err != nil {
			return scene.None, err
		}
		if err := g.Lock(r.eng, guide.MirrorAxis(axis), pair, flip != 0); err != nil {
			return scene.None, err
		}
		r.log.Debug("mirror inherited", "guide", g.Key(), "ancestor", cur, "axis", guide.MirrorAxis(axis))
		return cur, nil
	}
	if g.Locked(r.eng) {
		return scene.None, g.Unlock(r.eng)
	}
	return scene.None, nil
}

// Expand resolves g into its sides. The second side of a mirrored guide is a
// working copy of the guide: with flip off every copied node takes the
// reflected world position and the original world rotation and scale; with
// flip on the copy keeps the original transforms under a group scaled -1 on
// the mirror axes.
func (r *Resolver) Expand(g *guide.Guide) ([]Expansion, error) {
	sides := Sides(g.Options)
	out := []Expansion{{Side: sides[0], Placeholders: g.Placeholders()}}
	if len(sides) == 1 {
		return out, nil
	}
	side := sides[1]
	exp, err := r.expandMirrored(g, side)
	if err != nil {
		return nil, fmt.Errorf("mirror %s to %s: %w", g.Key(), side.Label(), err)
	}
	return append(out, exp), nil
}

// expandMirrored builds the side's working copy. On failure everything it
// created is deleted again.
func (r *Resolver) expandMirrored(g *guide.Guide, side Side) (_ Expansion, err error) {
	key := g.Key()
	grpName := "Mirror_Grp"
	if side.Flip {
		grpName = "MirrorFlip_Grp"
	}
	work, err := r.eng.CreateTransform(string(side.Node(key, grpName)), scene.None)
	if err != nil {
		return Expansion{}, err
	}
	var copyRoot scene.NodeID
	defer func() {
		if err == nil {
			return
		}
		for _, id := range []scene.NodeID{work, copyRoot} {
			if !id.IsZero() && r.eng.Exists(id) {
				err = errors.Join(err, r.eng.DeleteSubtree(id))
			}
		}
	}()

	copyRoot, mapping, err := r.eng.DuplicateSubtree(g.Root(), func(name string) string {
		return string(side.Node(key, "Guide", strings.TrimPrefix(name, g.Prefix())))
	})
	if err != nil {
		return Expansion{}, err
	}
	if err := r.eng.SetParent(copyRoot, work); err != nil {
		return Expansion{}, err
	}

	if side.Flip {
		if err := r.eng.SetLocal(work, scene.Scale, side.FlipScale()); err != nil {
			return Expansion{}, err
		}
		w, err := r.eng.World(g.Root())
		if err != nil {
			return Expansion{}, err
		}
		for _, c := range scene.Channels {
			if err := r.eng.SetLocal(copyRoot, c, w.Get(c)); err != nil {
				return Expansion{}, err
			}
		}
	} else {
		nodes, err := scene.Descendants(r.eng, g.Root())
		if err != nil {
			return Expansion{}, err
		}
		for _, id := range append([]scene.NodeID{g.Root()}, nodes...) {
			w, err := r.eng.World(id)
			if err != nil {
				return Expansion{}, err
			}
			w.Translate = xform.Reflect(w.Translate, side.Axes)
			if err := r.eng.SetWorld(mapping[id], w); err != nil {
				return Expansion{}, err
			}
		}
	}

	ph := g.Placeholders()
	mirrored := make([]scene.NodeID, len(ph))
	for i, id := range ph {
		mirrored[i] = mapping[id]
	}
	return Expansion{Side: side, Placeholders: mirrored, Work: work}, nil
}

// Discard deletes the working copies created by Expand.
func (r *Resolver) Discard(exps []Expansion) error {
	for _, e := range exps {
		if e.Work.IsZero() || !r.eng.Exists(e.Work) {
			continue
		}
		if err := r.eng.DeleteSubtree(e.Work); err != nil {
			return err
		}
	}
	return nil
}

package mirror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/scene"
	"github.com/chazu/sinew/pkg/xform"
)

// Preview is the live mirrored duplicate of a guide being edited.
type Preview struct {
	Group     scene.NodeID
	Root      scene.NodeID
	Decompose scene.NodeID
	Nodes     []scene.NodeID

	axis     guide.MirrorAxis
	segments int
}

func previewPrefix(g *guide.Guide) string { return g.Prefix() + "MirrorPreview_" }

// Preview returns the current preview of g, if any.
func (r *Resolver) Preview(g *guide.Guide) (*Preview, bool) {
	p, ok := r.previews[g.Key()]
	return p, ok
}

// Refresh brings g's preview in line with its options: it is removed when
// mirroring is off, rebuilt when the axis or segment count changed, and left
// alone otherwise. Building a preview requires world-space decomposition;
// without it Refresh fails before touching the scene.
func (r *Resolver) Refresh(g *guide.Guide) (*Preview, error) {
	if !g.Options.Mirror.Enabled() {
		return nil, r.RemovePreview(g)
	}
	if err := scene.Require(r.eng, scene.CapDecomposeMatrix, "mirror preview"); err != nil {
		return nil, err
	}
	if p, ok := r.previews[g.Key()]; ok {
		if p.axis == g.Options.Mirror && p.segments == g.Options.Segments && r.eng.Exists(p.Group) {
			return p, nil
		}
		if err := r.RemovePreview(g); err != nil {
			return nil, err
		}
	}
	p, err := r.buildPreview(g)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("mirror preview %s: %w", g.Key(), err), r.removePartial(g))
	}
	r.previews[g.Key()] = p
	return p, nil
}

// RemovePreview deletes g's preview.
func (r *Resolver) RemovePreview(g *guide.Guide) error {
	p, ok := r.previews[g.Key()]
	if !ok {
		return nil
	}
	delete(r.previews, g.Key())
	for _, id := range []scene.NodeID{p.Decompose, p.Group} {
		if !id.IsZero() && r.eng.Exists(id) {
			if err := r.eng.DeleteSubtree(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Resolver) removePartial(g *guide.Guide) error {
	for _, id := range []scene.NodeID{
		scene.NodeID(previewPrefix(g) + "Decompose"),
		scene.NodeID(previewPrefix(g) + "Grp"),
	} {
		if r.eng.Exists(id) {
			if err := r.eng.DeleteSubtree(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Resolver) buildPreview(g *guide.Guide) (*Preview, error) {
	prefix := previewPrefix(g)
	p := &Preview{axis: g.Options.Mirror, segments: g.Options.Segments}

	grp, err := r.eng.CreateTransform(prefix+"Grp", scene.None)
	if err != nil {
		return nil, err
	}
	p.Group = grp
	if err := r.eng.SetLocal(grp, scene.Scale, xform.ReflectScale(g.Options.Mirror.Axes())); err != nil {
		return nil, err
	}

	root, mapping, err := r.eng.DuplicateSubtree(g.Root(), func(name string) string {
		return prefix + strings.TrimPrefix(name, g.Prefix())
	})
	if err != nil {
		return nil, err
	}
	p.Root = root
	if err := r.eng.SetParent(root, grp); err != nil {
		return nil, err
	}

	strip, err := r.stripped(g)
	if err != nil {
		return nil, err
	}
	for _, id := range strip {
		if cp := mapping[id]; r.eng.Exists(cp) {
			if err := r.eng.DeleteSubtree(cp); err != nil {
				return nil, err
			}
		}
	}

	dec, err := r.eng.CreateUtility(scene.UtilDecomposeMatrix, prefix+"Decompose")
	if err != nil {
		return nil, err
	}
	p.Decompose = dec
	if err := r.eng.SetString(scene.P(dec, "inputNode"), string(g.Root())); err != nil {
		return nil, err
	}
	for _, c := range scene.Channels {
		src := scene.Prefixed("output"+strings.ToUpper(c.String()[:1])+c.String()[1:], scene.XYZ)
		if err := scene.ConnectTriple(r.eng, dec, src, root, c.Attrs()); err != nil {
			return nil, err
		}
	}

	nodes, err := scene.Descendants(r.eng, g.Root())
	if err != nil {
		return nil, err
	}
	for _, id := range nodes {
		cp, ok := mapping[id]
		if !ok || !r.eng.Exists(cp) {
			continue
		}
		for _, c := range scene.Channels {
			if err := scene.ConnectChannel(r.eng, id, cp, c); err != nil {
				return nil, err
			}
		}
		if r.proxies != nil {
			if err := r.proxies.Replace(r.eng, cp, r.proxySize); err != nil {
				return nil, err
			}
		}
		p.Nodes = append(p.Nodes, cp)
	}
	if r.proxies != nil {
		if err := r.proxies.Replace(r.eng, root, r.proxySize); err != nil {
			return nil, err
		}
	}
	r.log.Debug("mirror preview built", "guide", g.Key(), "nodes", len(p.Nodes)+1)
	return p, nil
}

// stripped lists the guide nodes left out of a preview: construction-only
// helpers and guides of other modules nested below this one.
func (r *Resolver) stripped(g *guide.Guide) ([]scene.NodeID, error) {
	nodes, err := scene.Descendants(r.eng, g.Root())
	if err != nil {
		return nil, err
	}
	var out []scene.NodeID
	for _, id := range nodes {
		if guide.ConstructionOnly(r.eng, id) || guide.IsRoot(r.eng, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

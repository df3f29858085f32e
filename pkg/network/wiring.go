package network

import (
	"fmt"

	"github.com/chazu/sinew/pkg/scene"
)

// wiring batches engine calls and keeps the first error, so a network can
// be laid out as a flat list of nodes and connections.
type wiring struct {
	eng    scene.Engine
	prefix func(parts ...string) scene.NodeID
	err    error
}

func (w *wiring) fail(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

func (w *wiring) util(kind scene.UtilityKind, parts ...string) scene.NodeID {
	if w.err != nil {
		return scene.None
	}
	id, err := w.eng.CreateUtility(kind, string(w.prefix(parts...)))
	w.fail(err)
	return id
}

func (w *wiring) connect(src, dst scene.Plug) {
	if w.err != nil {
		return
	}
	if err := w.eng.Connect(src, dst); err != nil {
		w.fail(fmt.Errorf("connect %s -> %s: %w", src, dst, err))
	}
}

func (w *wiring) set(p scene.Plug, v float64) {
	if w.err != nil {
		return
	}
	w.fail(w.eng.SetAttr(p, v))
}

func (w *wiring) setString(p scene.Plug, v string) {
	if w.err != nil {
		return
	}
	w.fail(w.eng.SetString(p, v))
}

func (w *wiring) triple(src scene.NodeID, srcAttrs [3]string, dst scene.NodeID, dstAttrs [3]string) {
	for i := range 3 {
		w.connect(scene.P(src, srcAttrs[i]), scene.P(dst, dstAttrs[i]))
	}
}

// blend creates a blendColors node computing color1*blender + color2*(1-blender)
// on its R channel, with color2 fixed.
func (w *wiring) blend(name string, color1 scene.Plug, color2 float64, blender scene.Plug) scene.NodeID {
	id := w.util(scene.UtilBlend, name)
	w.connect(color1, scene.P(id, "color1R"))
	w.set(scene.P(id, "color2R"), color2)
	w.connect(blender, scene.P(id, "blender"))
	return id
}

func (w *wiring) multiplyDivide(name string, op int) scene.NodeID {
	id := w.util(scene.UtilMultiplyDivide, name)
	w.set(scene.P(id, "operation"), float64(op))
	return id
}

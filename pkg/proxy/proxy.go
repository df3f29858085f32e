// Package proxy builds the lightweight display geometry that replaces guide
// shapes on preview duplicates. Shapes are modelled as sdfx signed distance
// solids and tessellated with marching cubes; the vertex cloud is stored on
// the scene node as a scene.Shape.
package proxy

import (
	"fmt"
	"math"
	"sync"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/samber/lo"

	"github.com/chazu/sinew/pkg/scene"
)

// ShapeKind is the kind string stored on proxy shapes.
const ShapeKind = "proxy"

// DefaultCells controls marching cubes tessellation resolution.
const DefaultCells = 12

// Form selects the proxy solid.
type Form int

const (
	Locator Form = iota // three crossed bars
	Joint               // sphere
	Bone                // cylinder along +X
)

func (f Form) String() string {
	switch f {
	case Locator:
		return "locator"
	case Joint:
		return "joint"
	case Bone:
		return "bone"
	default:
		return "unknown"
	}
}

// FormFor picks a proxy form for an original shape kind.
func FormFor(kind string) Form {
	switch kind {
	case "joint", "sphere":
		return Joint
	case "bone":
		return Bone
	default:
		return Locator
	}
}

// Mesh is a triangle soup produced by tessellation.
type Mesh struct {
	Triangles [][3]v3.Vec
	Normals   []v3.Vec // one face normal per triangle
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Triangles)
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Triangles) == 0
}

// Points returns the distinct vertices of the mesh.
func (m *Mesh) Points() []v3.Vec {
	pts := make([]v3.Vec, 0, len(m.Triangles)*3)
	for _, t := range m.Triangles {
		pts = append(pts, t[0], t[1], t[2])
	}
	return lo.Uniq(pts)
}

type key struct {
	form Form
	size float64
}

// Builder tessellates proxy solids. Results are memoised per form and size,
// since previews are rebuilt on every topology edit.
type Builder struct {
	cells int

	mu    sync.Mutex
	cache map[key]*Mesh
}

// New returns a Builder using the given marching cubes resolution. A
// non-positive value selects DefaultCells.
func New(cells int) *Builder {
	if cells <= 0 {
		cells = DefaultCells
	}
	return &Builder{cells: cells, cache: make(map[key]*Mesh)}
}

// Solid returns the signed distance solid for a form scaled to size.
func Solid(f Form, size float64) (sdf.SDF3, error) {
	if size <= 0 {
		return nil, fmt.Errorf("proxy: size must be positive, got %g", size)
	}
	switch f {
	case Joint:
		return sdf.Sphere3D(size)
	case Bone:
		s, err := sdf.Cylinder3D(size, size*0.2, 0)
		if err != nil {
			return nil, err
		}
		// Cylinder3D runs along Z centred on the origin; lay it along +X.
		m := sdf.Translate3d(v3.Vec{X: size / 2}).Mul(sdf.RotateY(math.Pi / 2))
		return sdf.Transform3D(s, m), nil
	default:
		bar := size * 0.25
		x, err := sdf.Box3D(v3.Vec{X: size, Y: bar, Z: bar}, 0)
		if err != nil {
			return nil, err
		}
		y, err := sdf.Box3D(v3.Vec{X: bar, Y: size, Z: bar}, 0)
		if err != nil {
			return nil, err
		}
		z, err := sdf.Box3D(v3.Vec{X: bar, Y: bar, Z: size}, 0)
		if err != nil {
			return nil, err
		}
		return sdf.Union3D(x, y, z), nil
	}
}

// Mesh tessellates a form with marching cubes.
func (b *Builder) Mesh(f Form, size float64) (*Mesh, error) {
	k := key{form: f, size: size}
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.cache[k]; ok {
		return m, nil
	}
	s, err := Solid(f, size)
	if err != nil {
		return nil, err
	}

	renderer := render.NewMarchingCubesUniform(b.cells)
	triangles := render.ToTriangles(s, renderer)

	m := &Mesh{
		Triangles: make([][3]v3.Vec, 0, len(triangles)),
		Normals:   make([]v3.Vec, 0, len(triangles)),
	}
	for _, tri := range triangles {
		m.Triangles = append(m.Triangles, [3]v3.Vec{tri[0], tri[1], tri[2]})
		m.Normals = append(m.Normals, tri.Normal())
	}
	if m.IsEmpty() {
		return nil, fmt.Errorf("proxy: %s of size %g tessellated to nothing", f, size)
	}
	b.cache[k] = m
	return m, nil
}

// Shape returns the proxy scene shape for a form.
func (b *Builder) Shape(f Form, size float64) (scene.Shape, error) {
	m, err := b.Mesh(f, size)
	if err != nil {
		return scene.Shape{}, err
	}
	return scene.Shape{Kind: ShapeKind, Points: m.Points()}, nil
}

// Replace swaps the shape of node for a proxy derived from its current
// shape kind. Nodes without a shape are left alone.
func (b *Builder) Replace(eng scene.Engine, node scene.NodeID, size float64) error {
	cur, err := eng.Shape(node)
	if err != nil {
		return err
	}
	if cur.Kind == "" || cur.Kind == ShapeKind {
		return nil
	}
	sh, err := b.Shape(FormFor(cur.Kind), size)
	if err != nil {
		return fmt.Errorf("proxy for %s: %w", node, err)
	}
	return eng.SetShape(node, sh)
}

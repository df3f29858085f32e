package modules

import (
	"context"
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/hook"
	"github.com/chazu/sinew/pkg/rig"
	"github.com/chazu/sinew/pkg/scene"
)

// SteerAngle is the wheel yaw in degrees at full steer.
const SteerAngle = 30.0

// Vehicle owns a main control and, once built, assembles a chassis line,
// a mirrored pair of front wheels and a steering control under it.
type Vehicle struct{}

func (Vehicle) Tag() string { return TagVehicle }

func (Vehicle) Spec() guide.Spec {
	return guide.Spec{MinSegments: 1, MaxSegments: 1}
}

func (Vehicle) Dependencies() []string { return []string{TagLine, TagWheel, TagSteering} }

func (Vehicle) BuildRig(ctx context.Context, sb *rig.SideBuild) error {
	_, ctrl, err := controlAt(sb, "Main", sb.Hooks.Control, sb.Placeholders[0])
	if err != nil {
		return err
	}
	sb.Export(ExportMainControl, ctrl)
	return nil
}

// Integrate builds the dependent modules one after another, parents them
// under the vehicle and drives the wheel yaw from the steer attribute.
func (Vehicle) Integrate(ctx context.Context, in *rig.Integration) error {
	w, err := in.Eng.World(in.Guide.Root())
	if err != nil {
		return err
	}
	base := w.Translate
	parts := []struct {
		tag, name string
		opts      guide.Options
	}{
		{TagLine, "Chassis", guide.Options{Segments: 2, Degree: guide.Cubic, Position: base}},
		{TagWheel, "FrontWheel", guide.Options{
			Segments: 1, Degree: guide.Cubic,
			Mirror: guide.MirrorX, Names: guide.NamePair{First: "L", Second: "R"},
			Position: base.Add(v3.Vec{X: 1, Z: 1}),
		}},
		{TagSteering, "Steering", guide.Options{Segments: 1, Degree: guide.Cubic, Position: base.Add(v3.Vec{Y: 1})}},
	}
	built := map[string]hook.Descriptor{}
	for _, p := range parts {
		d, err := in.BuildModule(ctx, p.tag, p.name, p.opts)
		if err != nil {
			return fmt.Errorf("vehicle %s: %w", p.name, err)
		}
		if err := in.Attach(d); err != nil {
			return err
		}
		built[p.tag] = d
		in.Log.DebugContext(ctx, "vehicle part built", "part", d.Key)
	}
	return steer(in, built[TagSteering], built[TagWheel])
}

func steer(in *rig.Integration, steering, wheels hook.Descriptor) error {
	attrs := steering.Exports[ExportSteerAttr]
	if len(attrs) == 0 {
		return fmt.Errorf("vehicle: steering exports no %s", ExportSteerAttr)
	}
	src, err := scene.ParsePlug(attrs[0])
	if err != nil {
		return err
	}
	md, err := in.Eng.CreateUtility(scene.UtilMultiplyDivide, in.Guide.Prefix()+"Steer_Md")
	if err != nil {
		return err
	}
	if err := in.Eng.SetAttr(scene.P(md, "operation"), scene.OpMultiply); err != nil {
		return err
	}
	if err := in.Eng.Connect(src, scene.P(md, "input1X")); err != nil {
		return err
	}
	if err := in.Eng.SetAttr(scene.P(md, "input2X"), SteerAngle); err != nil {
		return err
	}
	for _, zero := range wheels.Exports[ExportWheelZero] {
		if err := in.Eng.Connect(scene.P(md, "outputX"), scene.P(scene.NodeID(zero), "rotateY")); err != nil {
			return err
		}
	}
	return nil
}

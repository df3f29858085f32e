package rig

import (
	"slices"

	"github.com/chazu/sinew/pkg/scene"
)

// Session wraps an engine and records every node created through it, so a
// failed build can delete what it made.
type Session struct {
	scene.Engine
	created []scene.NodeID
}

// NewSession starts recording on eng.
func NewSession(eng scene.Engine) *Session {
	return &Session{Engine: eng}
}

func (s *Session) record(id scene.NodeID, err error) (scene.NodeID, error) {
	if err == nil {
		s.created = append(s.created, id)
	}
	return id, err
}

func (s *Session) CreateTransform(name string, parent scene.NodeID) (scene.NodeID, error) {
	return s.record(s.Engine.CreateTransform(name, parent))
}

func (s *Session) CreateJoint(name string, parent scene.NodeID) (scene.NodeID, error) {
	return s.record(s.Engine.CreateJoint(name, parent))
}

func (s *Session) CreateCurve(name string, parent scene.NodeID, cvs []scene.NodeID, degree int) (scene.NodeID, error) {
	return s.record(s.Engine.CreateCurve(name, parent, cvs, degree))
}

func (s *Session) CreateSolver(kind scene.SolverKind, name string, start, end, curve scene.NodeID) (scene.NodeID, error) {
	return s.record(s.Engine.CreateSolver(kind, name, start, end, curve))
}

func (s *Session) CreateUtility(kind scene.UtilityKind, name string) (scene.NodeID, error) {
	return s.record(s.Engine.CreateUtility(kind, name))
}

func (s *Session) BindConstraint(kind scene.ConstraintKind, drivers []scene.NodeID, driven scene.NodeID, opts scene.ConstraintOptions) (scene.NodeID, error) {
	return s.record(s.Engine.BindConstraint(kind, drivers, driven, opts))
}

func (s *Session) DuplicateSubtree(root scene.NodeID, rename func(string) string) (scene.NodeID, map[scene.NodeID]scene.NodeID, error) {
	id, mapping, err := s.Engine.DuplicateSubtree(root, rename)
	if err == nil {
		s.created = append(s.created, id)
	}
	return id, mapping, err
}

// Created returns the recorded nodes in creation order.
func (s *Session) Created() []scene.NodeID {
	return slices.Clone(s.created)
}

// Len is the number of recorded nodes.
func (s *Session) Len() int { return len(s.created) }

// Discard deletes every recorded node that still exists, newest first, and
// clears the record.
func (s *Session) Discard() error {
	for _, id := range slices.Backward(s.created) {
		if !s.Engine.Exists(id) {
			continue
		}
		if err := s.Engine.DeleteSubtree(id); err != nil {
			return err
		}
	}
	s.created = nil
	return nil
}

// Commit keeps the recorded nodes and clears the record.
func (s *Session) Commit() { s.created = nil }

// Package viewer provides the mutable viewer state: the current
// transform, visible source set, timepoint, display mode and
// interpolation method, with immutable snapshot support for the
// renderer.
package viewer

import (
	"sync"

	"github.com/gogpu/multires"
)

// DisplayMode selects which sources are visible.
type DisplayMode uint8

const (
	// ModeSingle shows only the current source.
	ModeSingle DisplayMode = iota

	// ModeGroup shows the sources of the current group.
	ModeGroup

	// ModeFused shows all active sources.
	ModeFused

	// ModeFusedGroup shows the sources of all active groups.
	ModeFusedGroup
)

// String returns a string representation of the display mode.
func (m DisplayMode) String() string {
	switch m {
	case ModeSingle:
		return "Single"
	case ModeGroup:
		return "Group"
	case ModeFused:
		return "Fused"
	case ModeFusedGroup:
		return "FusedGroup"
	default:
		return "Unknown"
	}
}

// Group is a named set of source indices that can be shown together.
type Group struct {
	Name    string
	Sources map[int]bool
}

// State is the live, mutable viewer state. All methods are safe for
// concurrent use; the renderer obtains an immutable copy via Snapshot
// at the start of each frame.
type State struct {
	mu sync.Mutex
	s  snapshot
}

// snapshot is the immutable value behind State. It implements
// multires.ViewerState without locking.
type snapshot struct {
	sources       []multires.SourceAndConverter
	active        []bool
	current       int
	groups        []Group
	groupActive   []bool
	currentGroup  int
	mode          DisplayMode
	interpolation multires.Interpolation
	timepoint     int
	numTimepoints int
	transform     multires.Affine3D
}

// NewState creates a viewer state over the given sources. All sources
// start active, display mode is fused, interpolation nearest-neighbor,
// and the transform is the identity.
func NewState(sources []multires.SourceAndConverter, numTimepoints int) *State {
	active := make([]bool, len(sources))
	for i := range active {
		active[i] = true
	}
	return &State{
		s: snapshot{
			sources:       sources,
			active:        active,
			mode:          ModeFused,
			numTimepoints: numTimepoints,
			transform:     multires.Identity3D(),
		},
	}
}

// Snapshot returns an immutable copy of the state.
func (st *State) Snapshot() multires.ViewerState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.copy()
}

// ViewerTransform returns the transform from global coordinates to
// canvas coordinates.
func (st *State) ViewerTransform() multires.Affine3D {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.transform
}

// SetViewerTransform sets the transform from global coordinates to
// canvas coordinates.
func (st *State) SetViewerTransform(t multires.Affine3D) {
	st.mu.Lock()
	st.s.transform = t
	st.mu.Unlock()
}

// VisibleAndPresentSources returns the sources visible under the
// current display mode and present at the current timepoint.
func (st *State) VisibleAndPresentSources() []multires.SourceAndConverter {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.VisibleAndPresentSources()
}

// BestMipMapLevel returns the source's mipmap level best matching the
// given screen transform.
func (st *State) BestMipMapLevel(screenTransform multires.Affine3D, soc multires.SourceAndConverter) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.BestMipMapLevel(screenTransform, soc)
}

// CurrentTimepoint returns the currently displayed timepoint.
func (st *State) CurrentTimepoint() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.timepoint
}

// SetCurrentTimepoint moves to the given timepoint, clamped to the
// valid range.
func (st *State) SetCurrentTimepoint(t int) {
	st.mu.Lock()
	st.s.timepoint = min(max(t, 0), st.s.numTimepoints-1)
	st.mu.Unlock()
}

// NumTimepoints returns the number of timepoints.
func (st *State) NumTimepoints() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.numTimepoints
}

// Interpolation returns the current interpolation method.
func (st *State) Interpolation() multires.Interpolation {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.interpolation
}

// SetInterpolation sets the interpolation method.
func (st *State) SetInterpolation(i multires.Interpolation) {
	st.mu.Lock()
	st.s.interpolation = i
	st.mu.Unlock()
}

// DisplayMode returns the current display mode.
func (st *State) DisplayMode() DisplayMode {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.mode
}

// SetDisplayMode sets the display mode.
func (st *State) SetDisplayMode(m DisplayMode) {
	st.mu.Lock()
	st.s.mode = m
	st.mu.Unlock()
}

// CurrentSource returns the index of the current source.
func (st *State) CurrentSource() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.current
}

// SetCurrentSource makes the source at index current. Out-of-range
// indices are ignored.
func (st *State) SetCurrentSource(index int) {
	st.mu.Lock()
	if index >= 0 && index < len(st.s.sources) {
		st.s.current = index
	}
	st.mu.Unlock()
}

// SetSourceActive sets whether the source at index is active in the
// fused display modes.
func (st *State) SetSourceActive(index int, active bool) {
	st.mu.Lock()
	if index >= 0 && index < len(st.s.active) {
		st.s.active[index] = active
	}
	st.mu.Unlock()
}

// IsSourceActive reports whether the source at index is active.
func (st *State) IsSourceActive(index int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return index >= 0 && index < len(st.s.active) && st.s.active[index]
}

// AddGroup appends a source group.
func (st *State) AddGroup(g Group) {
	st.mu.Lock()
	st.s.groups = append(st.s.groups, g)
	st.s.groupActive = append(st.s.groupActive, true)
	st.mu.Unlock()
}

// SetCurrentGroup makes the group at index current. Out-of-range
// indices are ignored.
func (st *State) SetCurrentGroup(index int) {
	st.mu.Lock()
	if index >= 0 && index < len(st.s.groups) {
		st.s.currentGroup = index
	}
	st.mu.Unlock()
}

// SetGroupActive sets whether the group at index is active in the
// fused-group display mode.
func (st *State) SetGroupActive(index int, active bool) {
	st.mu.Lock()
	if index >= 0 && index < len(st.s.groupActive) {
		st.s.groupActive[index] = active
	}
	st.mu.Unlock()
}

// copy returns a deep copy of the snapshot value.
func (s *snapshot) copy() *snapshot {
	c := *s
	c.sources = make([]multires.SourceAndConverter, len(s.sources))
	copy(c.sources, s.sources)
	c.active = make([]bool, len(s.active))
	copy(c.active, s.active)
	c.groups = make([]Group, len(s.groups))
	copy(c.groups, s.groups)
	c.groupActive = make([]bool, len(s.groupActive))
	copy(c.groupActive, s.groupActive)
	return &c
}

// Snapshot returns the snapshot itself: it is already immutable.
func (s *snapshot) Snapshot() multires.ViewerState { return s }

func (s *snapshot) ViewerTransform() multires.Affine3D { return s.transform }

func (s *snapshot) CurrentTimepoint() int { return s.timepoint }

func (s *snapshot) Interpolation() multires.Interpolation { return s.interpolation }

// VisibleAndPresentSources returns the sources visible under the
// display mode and present at the current timepoint.
func (s *snapshot) VisibleAndPresentSources() []multires.SourceAndConverter {
	var out []multires.SourceAndConverter
	for i, soc := range s.sources {
		if s.isVisible(i) && soc.Source.IsPresent(s.timepoint) {
			out = append(out, soc)
		}
	}
	return out
}

func (s *snapshot) isVisible(index int) bool {
	switch s.mode {
	case ModeSingle:
		return index == s.current
	case ModeGroup:
		return s.groupContains(s.currentGroup, index)
	case ModeFused:
		return s.active[index]
	case ModeFusedGroup:
		for g := range s.groups {
			if s.groupActive[g] && s.groupContains(g, index) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (s *snapshot) groupContains(group, index int) bool {
	return group >= 0 && group < len(s.groups) && s.groups[group].Sources[index]
}

// BestMipMapLevel returns the coarsest level whose voxel spacing,
// projected to the screen through screenTransform, still stays at or
// below one screen pixel; level 0 if even the full resolution is
// coarser than the screen, and the coarsest level if all levels
// oversample.
func (s *snapshot) BestMipMapLevel(screenTransform multires.Affine3D, soc multires.SourceAndConverter) int {
	src := soc.Source
	best := 0
	for level := 0; level < src.NumMipmapLevels(); level++ {
		voxelToScreen := screenTransform.Mul(src.SourceTransform(s.timepoint, level))
		spacing := max(voxelToScreen.XScale(), voxelToScreen.YScale())
		if spacing > 1 {
			break
		}
		best = level
	}
	return best
}

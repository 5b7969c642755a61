package multires

import (
	"log/slog"

	"github.com/gogpu/multires/internal/parallel"
)

// screenProjectorFactory is the renderer's internal seam for projector
// creation.
type screenProjectorFactory interface {
	createProjector(state ViewerState, screenImage *ARGBImage, screenTransform Affine3D, storage *renderStorage) VolatileProjector
	requestNewFrameIfIncomplete() bool
	close()
}

// projectorFactory builds composite projectors for rendering a viewer
// state snapshot into a screen image.
type projectorFactory struct {
	numTasks    int
	executor    RenderingExecutor
	ownPool     *parallel.WorkerPool // non-nil when no external executor was supplied
	useVolatile bool
	accumulate  AccumulateProjectorFactory

	// newFrameIfIncomplete directs the renderer to request a full new
	// frame (with CacheControl.PrepareNextFrame) when a pass completes
	// with invalid data, instead of continuing with a finer scale or
	// re-rendering the finest scale. Some cache strategies depend on
	// this.
	newFrameIfIncomplete bool
}

func newProjectorFactory(
	numTasks int,
	executor RenderingExecutor,
	useVolatile bool,
	accumulate AccumulateProjectorFactory,
	newFrameIfIncomplete bool,
) *projectorFactory {
	f := &projectorFactory{
		numTasks:             numTasks,
		executor:             executor,
		useVolatile:          useVolatile,
		accumulate:           accumulate,
		newFrameIfIncomplete: newFrameIfIncomplete,
	}
	if f.executor == nil {
		f.ownPool = parallel.NewWorkerPool(numTasks)
		f.executor = f.ownPool
	}
	return f
}

// requestNewFrameIfIncomplete reports the policy captured at
// construction; see the field doc.
func (f *projectorFactory) requestNewFrameIfIncomplete() bool {
	return f.newFrameIfIncomplete
}

// close releases the factory's own worker pool, if any.
func (f *projectorFactory) close() {
	if f.ownPool != nil {
		f.ownPool.Close()
		f.ownPool = nil
	}
}

// createProjector builds a projector rendering the visible sources of
// state into screenImage. screenTransform maps global coordinates to
// pixel coordinates of screenImage (the viewer transform concatenated
// with the screen scale transform and the interval crop offset).
// storage must have been renewed for the current pass.
func (f *projectorFactory) createProjector(
	state ViewerState,
	screenImage *ARGBImage,
	screenTransform Affine3D,
	storage *renderStorage,
) VolatileProjector {
	socs := state.VisibleAndPresentSources()
	if len(socs) == 0 {
		return &emptyProjector{dest: screenImage}
	}

	timepoint := state.CurrentTimepoint()
	interp := state.Interpolation()
	width := screenImage.Width()
	height := screenImage.Height()
	single := len(socs) == 1

	c := &compositeProjector{
		dest:     screenImage,
		executor: f.executor,
		numTasks: f.numTasks,
	}

	for i, soc := range socs {
		pair := soc
		if f.useVolatile && soc.Volatile != nil {
			pair = *soc.Volatile
		}

		level := state.BestMipMapLevel(screenTransform, pair)
		voxelToScreen := screenTransform.Mul(pair.Source.SourceTransform(timepoint, level))
		screenToVoxel, ok := voxelToScreen.Inverse()
		if !ok {
			Logger().Warn("singular source transform, skipping source",
				slog.String("source", pair.Source.Name()))
			continue
		}

		sp := &sourceProjector{
			source:        pair.Source,
			converter:     pair.Converter,
			timepoint:     timepoint,
			level:         level,
			interp:        interp,
			screenToVoxel: screenToVoxel,
			width:         width,
			height:        height,
			canceled:      &c.canceled,
		}
		if single {
			sp.dest = screenImage.Pix()
		} else {
			sp.dest = storage.renderImage(i)[:width*height]
			sp.mask = storage.mask(i)[:width*height]
		}
		c.sources = append(c.sources, sp)
	}

	if len(c.sources) == 0 {
		return &emptyProjector{dest: screenImage}
	}
	if !single {
		c.accumulate = f.accumulate.CreateAccumulateProjector(len(c.sources))
	}
	return c
}

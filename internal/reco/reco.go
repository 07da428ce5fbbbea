package reco

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"runtime"

	"github.com/go-playground/validator/v10"
	"github.com/specialistvlad/pdgsim/internal/ctxlog"
	"github.com/specialistvlad/pdgsim/internal/signal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/specialistvlad/pdgsim/internal/reco")

// Density selects the density compensation applied before the adjoint.
type Density string

const (
	DensityNone     Density = "none"
	DensityRadial   Density = "radial"
	DensityExplicit Density = "explicit"
)

// Options configures a reconstruction.
type Options struct {
	// Shape of the reconstructed grid. A zero z extent means 1.
	Shape   [3]int  `validate:"dive,gte=0"`
	Density Density `validate:"omitempty,oneof=none radial explicit"`
	// Weights are the per-sample weights for DensityExplicit.
	Weights []float64
	// Workers bounds the row parallelism of the NUDFT; zero means GOMAXPROCS.
	Workers int `validate:"gte=0"`
	// NonCartesian forces the NUDFT even for grid-aligned samples.
	NonCartesian bool
}

// Image is a reconstructed volume, x-fastest like phantom grids.
type Image struct {
	Shape [3]int
	// Coils holds one complex image per receive coil.
	Coils [][]complex128
	// Combined is the root-sum-of-squares magnitude over coils.
	Combined []float64
	// Cartesian reports whether the FFT path was used.
	Cartesian bool
}

// At returns the combined magnitude at (x, y, z).
func (im *Image) At(x, y, z int) float64 {
	return im.Combined[x+im.Shape[0]*(y+im.Shape[1]*z)]
}

var validate = validator.New()

// gridTolerance is how far a sample may sit from an integer k and still be
// treated as grid-aligned.
const gridTolerance = 1e-6

// Adjoint reconstructs trace onto the grid described by opts.
func Adjoint(ctx context.Context, trace *signal.Trace, opts Options) (*Image, error) {
	logger := ctxlog.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "reco.Adjoint")
	defer span.End()

	if err := validate.Struct(&opts); err != nil {
		return nil, fmt.Errorf("invalid reconstruction options: %w", err)
	}
	shape := opts.Shape
	if shape[2] == 0 {
		shape[2] = 1
	}
	if shape[0] == 0 || shape[1] == 0 {
		return nil, errors.New("reconstruction shape must be positive")
	}
	w, err := weights(trace, opts)
	if err != nil {
		return nil, err
	}

	im := &Image{Shape: shape, Coils: make([][]complex128, trace.Coils)}
	im.Cartesian = !opts.NonCartesian && onGrid(trace)
	span.SetAttributes(attribute.Bool("reco.cartesian", im.Cartesian), attribute.Int("reco.samples", len(trace.Samples)))

	for c := range trace.Coils {
		if im.Cartesian {
			im.Coils[c] = gridded(trace, c, w, shape)
			continue
		}
		img, err := nudft(ctx, trace, c, w, shape, opts.Workers)
		if err != nil {
			return nil, err
		}
		im.Coils[c] = img
	}
	im.Combined = rss(im.Coils, shape[0]*shape[1]*shape[2])

	logger.Debug("Reconstruction finished.", "shape", shape, "coils", trace.Coils, "cartesian", im.Cartesian)
	return im, nil
}

func weights(trace *signal.Trace, opts Options) ([]float64, error) {
	n := len(trace.Samples)
	w := make([]float64, n)
	switch opts.Density {
	case DensityExplicit:
		if len(opts.Weights) != n {
			return nil, fmt.Errorf("explicit density needs %d weights, got %d", n, len(opts.Weights))
		}
		copy(w, opts.Weights)
	case DensityRadial:
		// |k| with the centre clamped to half a sample, scaled to mean 1.
		sum := 0.0
		for i, s := range trace.Samples {
			w[i] = max(math.Hypot(math.Hypot(s.K[0], s.K[1]), s.K[2]), 0.5)
			sum += w[i]
		}
		if sum > 0 {
			for i := range w {
				w[i] *= float64(n) / sum
			}
		}
	default:
		for i := range w {
			w[i] = 1
		}
	}
	return w, nil
}

func onGrid(trace *signal.Trace) bool {
	for _, s := range trace.Samples {
		for _, k := range s.K {
			if math.Abs(k-math.Round(k)) > gridTolerance {
				return false
			}
		}
	}
	return true
}

// position returns the voxel centre of index i along an axis of n voxels.
func position(i, n int) float64 {
	return float64(i-n/2) / float64(n)
}

// gridded evaluates the adjoint with FFTs. Integer k is periodic in the
// voxel grid, so samples wrap modulo the shape exactly.
func gridded(trace *signal.Trace, coil int, w []float64, shape [3]int) []complex128 {
	total := shape[0] * shape[1] * shape[2]
	vol := make([]complex128, total)
	for i, s := range trace.Samples {
		var m [3]int
		for a := range m {
			k := int(math.Round(s.K[a]))
			m[a] = ((k % shape[a]) + shape[a]) % shape[a]
		}
		vol[m[0]+shape[0]*(m[1]+shape[1]*m[2])] += complex(w[i], 0) * s.Values[coil]
	}
	// Shift the origin to the grid's centre voxel.
	for z := range shape[2] {
		for y := range shape[1] {
			for x := range shape[0] {
				ph := float64(x*(shape[0]/2))/float64(shape[0]) +
					float64(y*(shape[1]/2))/float64(shape[1]) +
					float64(z*(shape[2]/2))/float64(shape[2])
				vol[x+shape[0]*(y+shape[1]*z)] *= cmplx.Rect(1, -2*math.Pi*ph)
			}
		}
	}
	inverseFFT3(vol, shape)
	return vol
}

// nudft evaluates the exact adjoint, one (y, z) row per task.
func nudft(ctx context.Context, trace *signal.Trace, coil int, w []float64, shape [3]int, workers int) ([]complex128, error) {
	total := shape[0] * shape[1] * shape[2]
	out := make([]complex128, total)
	ys := make([]complex128, len(trace.Samples))
	for i, s := range trace.Samples {
		ys[i] = complex(w[i], 0) * s.Values[coil] / complex(float64(total), 0)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for row := range shape[1] * shape[2] {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			y, z := row%shape[1], row/shape[1]
			ry, rz := position(y, shape[1]), position(z, shape[2])
			base := shape[0] * row
			for x := range shape[0] {
				rx := position(x, shape[0])
				var sum complex128
				for i, s := range trace.Samples {
					sum += ys[i] * cmplx.Rect(1, 2*math.Pi*(s.K[0]*rx+s.K[1]*ry+s.K[2]*rz))
				}
				out[base+x] = sum
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("reconstruction aborted: %w", err)
	}
	return out, nil
}

func rss(coils [][]complex128, n int) []float64 {
	out := make([]float64, n)
	for _, img := range coils {
		for i, v := range img {
			out[i] += real(v)*real(v) + imag(v)*imag(v)
		}
	}
	for i := range out {
		out[i] = math.Sqrt(out[i])
	}
	return out
}

// Forward evaluates the encoding operator y_s = Σ_r x(r)·e^{-2πi k_s·r} for
// an x-fastest image. It is the exact counterpart of the adjoint and is used
// to check reconstructions.
func Forward(img []complex128, shape [3]int, traj [][3]float64) []complex128 {
	out := make([]complex128, len(traj))
	for s, k := range traj {
		var sum complex128
		for z := range shape[2] {
			for y := range shape[1] {
				for x := range shape[0] {
					r := [3]float64{position(x, shape[0]), position(y, shape[1]), position(z, shape[2])}
					sum += img[x+shape[0]*(y+shape[1]*z)] * cmplx.Rect(1, -2*math.Pi*(k[0]*r[0]+k[1]*r[1]+k[2]*r[2]))
				}
			}
		}
		out[s] = sum
	}
	return out
}

package app

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/pdgsim/internal/config"
	"github.com/specialistvlad/pdgsim/internal/mainpass"
	"github.com/specialistvlad/pdgsim/internal/pdg"
	"github.com/specialistvlad/pdgsim/internal/phantom"
	"github.com/specialistvlad/pdgsim/internal/prepass"
	"github.com/specialistvlad/pdgsim/internal/reco"
	"github.com/specialistvlad/pdgsim/internal/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestParseDevice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		device  string
		want    int
		wantErr string
	}{
		{device: "", want: 0},
		{device: "cpu", want: 0},
		{device: "CPU:8", want: 8},
		{device: "cpu:0", wantErr: "positive integer"},
		{device: "cpu:x", wantErr: "positive integer"},
		{device: "cuda", wantErr: "unsupported device"},
	}
	for _, tc := range tests {
		t.Run(tc.device, func(t *testing.T) {
			got, err := ParseDevice(tc.device)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewConfig(t *testing.T) {
	t.Parallel()

	valid := Config{ScenarioPaths: []string{"scenario.hcl"}, LogFormat: "text", LogLevel: "info", Device: "cpu:3"}

	cfg, err := NewConfig(valid)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)

	bad := valid
	bad.ScenarioPaths = nil
	_, err = NewConfig(bad)
	assert.ErrorContains(t, err, "scenario path is required")

	bad = valid
	bad.LogFormat = "xml"
	_, err = NewConfig(bad)
	assert.ErrorContains(t, err, "invalid configuration")

	bad = valid
	bad.TraceExporter = "jaeger"
	_, err = NewConfig(bad)
	assert.ErrorContains(t, err, "TraceExporter")
}

func TestBuildSequence(t *testing.T) {
	t.Parallel()

	t.Run("generators", func(t *testing.T) {
		for _, s := range []*config.Sequence{
			{Type: config.SequenceFID, FlipAngle: math.Pi / 2, Delay: 1e-3},
			{Type: config.SequenceGRE, Matrix: []int{4, 2}, FlipAngle: 0.2},
			{Type: config.SequenceSpinEcho, Matrix: []int{4, 2}, EchoTime: 1e-2, Dwell: 1e-5},
			{Type: config.SequenceRadial, Spokes: 3, Samples: 4, FlipAngle: 0.2},
		} {
			seq, err := buildSequence(s)
			require.NoError(t, err, s.Type)
			assert.Positive(t, seq.ADCCount(), s.Type)
		}
	})

	t.Run("custom expands repeated events", func(t *testing.T) {
		seq, err := buildSequence(&config.Sequence{
			Type: config.SequenceCustom,
			Repetitions: []config.Repetition{{
				Pulse: config.Pulse{Usage: "excitation", Angle: math.Pi / 2},
				Events: []config.Event{
					{Duration: 1e-3, Gradient: []float64{-2, 0, 0}},
					{Duration: 1e-5, Gradient: []float64{1, 0, 0}, ADC: true, Repeat: 4},
				},
			}},
		})
		require.NoError(t, err)
		require.Len(t, seq.Repetitions, 1)
		rep := seq.Repetitions[0]
		assert.Equal(t, sequence.UsageExcitation, rep.Pulse.Usage)
		assert.Len(t, rep.Events, 5)
		assert.Equal(t, 4, seq.ADCCount())
		assert.Equal(t, [3]float64{-2, 0, 0}, rep.Events[0].Gradient)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := buildSequence(&config.Sequence{Type: config.SequenceGRE, Matrix: []int{4}})
		assert.ErrorContains(t, err, "matrix needs 2 components")

		_, err = buildSequence(&config.Sequence{Type: config.SequenceCustom, Repetitions: []config.Repetition{{Pulse: config.Pulse{Usage: "saturation"}}}})
		assert.ErrorContains(t, err, "repetition 0")

		_, err = buildSequence(&config.Sequence{Type: config.SequenceFID, Delay: -1})
		assert.ErrorIs(t, err, sequence.ErrMalformed)
	})
}

func TestBuildPhantom(t *testing.T) {
	t.Parallel()

	water := &config.Tissue{PD: 1, T1: 1, T2: 0.1}

	t.Run("uniform grid with crop and resample", func(t *testing.T) {
		ph, err := buildPhantom(&config.Phantom{
			Type:     config.PhantomUniform,
			Shape:    []int{8, 8, 1},
			FOV:      []float64{0.2, 0.2, 0.01},
			Tissue:   water,
			CropLo:   []int{2, 2, 0},
			CropHi:   []int{6, 6, 1},
			Resample: []int{2, 2, 1},
		})
		require.NoError(t, err)
		assert.Equal(t, [3]int{2, 2, 1}, ph.Shape)
		assert.InDeltaSlice(t, []float64{0.1, 0.1, 0.01}, ph.FOV[:], 1e-12)
		assert.Equal(t, 4, ph.VoxelCount())
	})

	t.Run("disks converted to points", func(t *testing.T) {
		ph, err := buildPhantom(&config.Phantom{
			Type:           config.PhantomDisks,
			Shape:          []int{4, 4, 1},
			FOV:            []float64{0.2, 0.2, 0.005},
			Background:     &config.Tissue{T1: 1, T2: 0.1},
			Disks:          []config.Disk{{Center: []float64{0, 0}, Radius: 0.1, Tissue: *water}},
			PointThreshold: ptr(0.0),
		})
		require.NoError(t, err)
		_, isPoints := ph.Phantom.(*phantom.Points)
		assert.True(t, isPoints)
		assert.Equal(t, 1, ph.VoxelCount())
		assert.Equal(t, [3]int{4, 4, 1}, ph.Shape)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "grid.yaml")
		require.NoError(t, phantom.Save(path, phantom.NewUniformGrid([3]int{2, 2, 1}, [3]float64{0.1, 0.1, 0.1}, phantom.Tissue{PD: 1, T1: 1, T2: 0.1})))

		ph, err := buildPhantom(&config.Phantom{Type: config.PhantomFile, Path: path})
		require.NoError(t, err)
		assert.Equal(t, [3]int{2, 2, 1}, ph.Shape)
		assert.Equal(t, [3]float64{0.1, 0.1, 0.1}, ph.FOV)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := buildPhantom(&config.Phantom{Type: config.PhantomUniform, Shape: []int{2, 2}, FOV: []float64{1, 1, 1}, Tissue: water})
		assert.ErrorContains(t, err, "phantom shape needs 3 components")

		_, err = buildPhantom(&config.Phantom{Type: config.PhantomUniform, Shape: []int{2, 2, 1}, FOV: []float64{1, 1, 1}, Tissue: water, CropLo: []int{0, 0, 0}, CropHi: []int{3, 2, 1}})
		assert.ErrorContains(t, err, "crop")

		_, err = buildPhantom(&config.Phantom{Type: config.PhantomFile, Path: filepath.Join(t.TempDir(), "missing.yaml")})
		assert.Error(t, err)
	})
}

func TestPassParams(t *testing.T) {
	t.Parallel()

	sim := &config.Simulation{
		T1:           ptr(2.0),
		MinMagnitude: ptr(0.0),
		MaxStates:    ptr(10),
		Eviction:     "per_kind",
		KResolution:  ptr(100),
		Nyquist:      []float64{8, 8, 0},
		Workers:      ptr(3),
		ChunkSize:    ptr(16),
		Normalize:    "total_pd",
	}
	fov := [3]float64{0.3, 0.3, 0.01}

	pp, err := prepassParams(sim, &builtPhantom{FOV: fov})
	require.NoError(t, err)
	want := prepass.DefaultParams()
	want.T1 = 2
	want.MinMagnitude = 0
	want.MaxStates = 10
	want.Eviction = prepass.EvictPerKind
	want.KResolution = 100
	want.Nyquist = [3]float64{8, 8, 0}
	want.FOV = fov
	assert.Equal(t, want, pp)

	mp, err := mainpassParams(sim, pp, 0)
	require.NoError(t, err)
	assert.Equal(t, mainpass.Params{KResolution: 100, MaxOrder: pp.MaxOrder, Workers: 3, ChunkSize: 16, Normalize: mainpass.NormalizeTotalPD}, mp)

	mp, err = mainpassParams(sim, pp, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, mp.Workers, "device workers win")

	_, err = prepassParams(&config.Simulation{Eviction: "random"}, &builtPhantom{FOV: fov})
	assert.ErrorContains(t, err, "invalid pre-pass parameters")

	_, err = prepassParams(&config.Simulation{Nyquist: []float64{1}}, &builtPhantom{FOV: fov})
	assert.ErrorContains(t, err, "nyquist needs 3 components")

	_, err = mainpassParams(&config.Simulation{Normalize: "peak"}, pp, 0)
	assert.ErrorContains(t, err, "invalid main-pass parameters")
}

func TestPrepassParams_TissueProfile(t *testing.T) {
	t.Parallel()

	build := func(tissues ...phantom.Tissue) *builtPhantom {
		voxels := make([]phantom.Voxel, len(tissues))
		for i, ts := range tissues {
			voxels[i] = phantom.Voxel{Tissue: ts}
		}
		ph, err := phantom.NewPoints(voxels, 1)
		require.NoError(t, err)
		return &builtPhantom{Phantom: ph}
	}
	base := phantom.Tissue{PD: 1, T1: 1, T2: 0.1}

	t.Run("nominal", func(t *testing.T) {
		t.Parallel()
		pp, err := prepassParams(&config.Simulation{}, build(base, base))
		require.NoError(t, err)
		assert.Zero(t, pp.T2Dash)
		assert.Nil(t, pp.B1)
	})

	t.Run("mapped", func(t *testing.T) {
		t.Parallel()
		a, b, empty := base, base, base
		a.T2Dash, a.B1 = 0.02, 0.6
		b.T2Dash = 0.04
		empty.PD, empty.B1 = 0, 0.1
		pp, err := prepassParams(&config.Simulation{}, build(a, b, empty))
		require.NoError(t, err)
		assert.InDelta(t, 0.03, pp.T2Dash, 1e-15)
		assert.InDeltaSlice(t, []float64{0.6, 0.8, 1}, pp.B1, 1e-12, "empty voxels do not widen the range")
	})

	t.Run("uniform transmit", func(t *testing.T) {
		t.Parallel()
		a := base
		a.B1 = 0.9
		pp, err := prepassParams(&config.Simulation{T2Dash: ptr(0.05)}, build(a))
		require.NoError(t, err)
		assert.Equal(t, []float64{0.9}, pp.B1)
		assert.Equal(t, 0.05, pp.T2Dash, "the simulation block wins")
	})
}

func TestRecoOptions(t *testing.T) {
	t.Parallel()

	gre := &config.Sequence{Type: config.SequenceGRE, Matrix: []int{16, 8}}
	radial := &config.Sequence{Type: config.SequenceRadial}
	grid := &builtPhantom{Shape: [3]int{4, 4, 1}}
	points := &builtPhantom{}

	o, err := recoOptions(&config.Reconstruction{Shape: []int{2, 2, 2}}, gre, grid, 0)
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 2, 2}, o.Shape)
	assert.Equal(t, reco.DensityNone, o.Density)

	o, err = recoOptions(&config.Reconstruction{}, gre, grid, 2)
	require.NoError(t, err)
	assert.Equal(t, [3]int{4, 4, 1}, o.Shape)
	assert.Equal(t, 2, o.Workers)

	o, err = recoOptions(&config.Reconstruction{}, gre, points, 0)
	require.NoError(t, err)
	assert.Equal(t, [3]int{16, 8, 1}, o.Shape)

	o, err = recoOptions(&config.Reconstruction{}, radial, grid, 0)
	require.NoError(t, err)
	assert.Equal(t, reco.DensityRadial, o.Density)

	_, err = recoOptions(&config.Reconstruction{}, radial, points, 0)
	assert.ErrorContains(t, err, "reconstruction shape is required")
}

type fakeExporter struct {
	exportErr, closeErr error
	closed              bool
}

func (f *fakeExporter) Export(context.Context, string, *pdg.Graph) error { return f.exportErr }

func (f *fakeExporter) Close(context.Context) error {
	f.closed = true
	return f.closeErr
}

func TestExportGraph_ReportsCloseError(t *testing.T) {
	t.Parallel()

	errExport := errors.New("export failed")
	errClose := errors.New("close failed")

	tests := []struct {
		name    string
		exp     *fakeExporter
		wantErr []error
	}{
		{"clean", &fakeExporter{}, nil},
		{"close fails", &fakeExporter{closeErr: errClose}, []error{errClose}},
		{"both fail", &fakeExporter{exportErr: errExport, closeErr: errClose}, []error{errExport, errClose}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := exportGraph(context.Background(), tt.exp, "g1", &pdg.Graph{})
			assert.True(t, tt.exp.closed)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	newLogger("bogus", "text", &buf).Info("fallback")
	assert.Contains(t, buf.String(), "msg=fallback")
}

func TestHealthMux(t *testing.T) {
	t.Parallel()

	a, err := NewApp(context.Background(), &bytes.Buffer{}, &Config{LogLevel: "info", LogFormat: "text"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	mux := a.newHealthMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())

	a.metrics.ObserveGraph(5, 6)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "pdgsim_graph_edges 6")
}

func TestClose_IsIdempotent(t *testing.T) {
	t.Parallel()

	a, err := NewApp(context.Background(), &bytes.Buffer{}, &Config{LogLevel: "info", LogFormat: "text", CacheDir: t.TempDir()}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

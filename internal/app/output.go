package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/specialistvlad/pdgsim/internal/ctxlog"
	"github.com/specialistvlad/pdgsim/internal/pdg"
	"github.com/specialistvlad/pdgsim/internal/pdgexport"
	"github.com/specialistvlad/pdgsim/internal/reco"
	"github.com/specialistvlad/pdgsim/internal/signal"
)

// traceFile is the JSON layout of a written trace. Complex values are
// [re, im] pairs, one per coil.
type traceFile struct {
	RunID   string        `json:"run_id"`
	Coils   int           `json:"coils"`
	Lossy   bool          `json:"lossy"`
	Evicted int           `json:"evicted"`
	Samples []traceSample `json:"samples"`
}

type traceSample struct {
	signal.Sample
	Values [][2]float64 `json:"values"`
}

func (a *App) outputPath(p string) string {
	if p == "" || filepath.IsAbs(p) || a.config.OutputDir == "" {
		return p
	}
	return filepath.Join(a.config.OutputDir, p)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// writeOutputs writes every artefact the scenario asks for.
func (a *App) writeOutputs(ctx context.Context, res *Result) error {
	logger := ctxlog.FromContext(ctx)
	out := res.Scenario.Output

	if p := a.outputPath(out.Trace); p != "" {
		if err := writeTrace(p, res.RunID, res.Trace); err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
		logger.Info("Trace written.", "path", p)
	}
	if p := a.outputPath(out.Image); p != "" {
		if res.Image == nil {
			return fmt.Errorf("image output %s requires a reconstruction block", p)
		}
		if err := writeImage(p, res.Image); err != nil {
			return fmt.Errorf("failed to write image: %w", err)
		}
		logger.Info("Image written.", "path", p)
	}
	if p := a.outputPath(out.Graph); p != "" {
		data, err := pdg.Encode(res.Graph)
		if err != nil {
			return err
		}
		if err := writeFile(p, data); err != nil {
			return fmt.Errorf("failed to write graph: %w", err)
		}
		logger.Info("Graph written.", "path", p)
	}
	if out.Neo4j != nil {
		exp, err := pdgexport.Connect(ctx, out.Neo4j.URI, out.Neo4j.User, out.Neo4j.Password)
		if err != nil {
			return err
		}
		if err := exportGraph(ctx, exp, string(res.Key), res.Graph); err != nil {
			return err
		}
		logger.Info("Graph exported to Neo4j.", "uri", out.Neo4j.URI, "graph", res.Key)
	}
	return nil
}

// graphExporter is the part of *pdgexport.Exporter used by the outputs.
type graphExporter interface {
	Export(ctx context.Context, key string, g *pdg.Graph) error
	Close(ctx context.Context) error
}

// exportGraph writes g and always closes exp; a close failure is reported
// together with any export error.
func exportGraph(ctx context.Context, exp graphExporter, key string, g *pdg.Graph) (err error) {
	defer func() {
		err = errors.Join(err, exp.Close(ctx))
	}()
	return exp.Export(ctx, key, g)
}

func writeTrace(path, runID string, t *signal.Trace) error {
	f := traceFile{RunID: runID, Coils: t.Coils, Lossy: t.Lossy, Evicted: t.Evicted, Samples: make([]traceSample, len(t.Samples))}
	for i, s := range t.Samples {
		values := make([][2]float64, len(s.Values))
		for c, v := range s.Values {
			values[c] = [2]float64{real(v), imag(v)}
		}
		f.Samples[i] = traceSample{Sample: s, Values: values}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// writeImage stores the central z slice of the combined magnitude as a
// 16-bit grayscale PNG scaled to its maximum. Row 0 of the PNG is the
// highest y.
func writeImage(path string, im *reco.Image) error {
	nx, ny := im.Shape[0], im.Shape[1]
	z := im.Shape[2] / 2

	peak := 0.0
	for y := range ny {
		for x := range nx {
			peak = max(peak, im.At(x, y, z))
		}
	}
	scale := 0.0
	if peak > 0 {
		scale = 65535 / peak
	}

	img := image.NewGray16(image.Rect(0, 0, nx, ny))
	for y := range ny {
		for x := range nx {
			img.SetGray16(x, ny-1-y, color.Gray16{Y: uint16(im.At(x, y, z)*scale + 0.5)})
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

package hcl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/pdgsim/internal/config"
	"github.com/specialistvlad/pdgsim/internal/ctxlog"
	"github.com/specialistvlad/pdgsim/internal/fsutil"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL scenario loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load parses every .hcl file under paths and merges their blocks into one
// scenario. The sequence and phantom blocks are required.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Scenario, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFiles(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	var blocks hcl.Blocks
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		content, diags := f.Body.Content(rootSchema)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		blocks = append(blocks, content.Blocks...)
	}

	sc, err := l.decode(blocks)
	if err != nil {
		return nil, err
	}
	logger.Debug("HCL loading complete.", "sequence", sc.Sequence.Type, "phantom", sc.Phantom.Type)
	return sc, nil
}

func (l *Loader) decode(blocks hcl.Blocks) (*config.Scenario, error) {
	evalCtx := evalContext()
	sc := &config.Scenario{}

	// decodeUnique decodes the single block of the given type into target.
	// It returns the block, or nil when the type is absent.
	decodeUnique := func(name string, target any) (*hcl.Block, error) {
		block, diags := findUniqueBlock(blocks, name)
		if diags.HasErrors() {
			return nil, diags
		}
		if block == nil {
			return nil, nil
		}
		if diags := gohcl.DecodeBody(block.Body, evalCtx, target); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode %s block: %w", name, diags)
		}
		return block, nil
	}

	var sim simulationBlock
	if _, err := decodeUnique("simulation", &sim); err != nil {
		return nil, err
	}
	sc.Simulation = translateSimulation(&sim)

	var seq sequenceBlock
	block, err := decodeUnique("sequence", &seq)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, errors.New("scenario has no sequence block")
	}
	if sc.Sequence, err = translateSequence(block.Labels[0], &seq); err != nil {
		return nil, err
	}

	var ph phantomBlock
	block, err = decodeUnique("phantom", &ph)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, errors.New("scenario has no phantom block")
	}
	if sc.Phantom, err = translatePhantom(block.Labels[0], &ph); err != nil {
		return nil, err
	}
	// Phantom files are resolved relative to the scenario file naming them.
	if sc.Phantom.Path != "" && !filepath.IsAbs(sc.Phantom.Path) {
		sc.Phantom.Path = filepath.Join(filepath.Dir(block.DefRange.Filename), sc.Phantom.Path)
	}

	var reco reconstructionBlock
	block, err = decodeUnique("reconstruction", &reco)
	if err != nil {
		return nil, err
	}
	if block != nil {
		sc.Reconstruction = &config.Reconstruction{
			Shape:        reco.Shape,
			Density:      reco.Density,
			NonCartesian: reco.NonCartesian,
		}
	}

	var out outputBlock
	if _, err := decodeUnique("output", &out); err != nil {
		return nil, err
	}
	sc.Output = config.Output{Trace: out.Trace, Image: out.Image, Graph: out.Graph}
	if out.Neo4j != nil {
		sc.Output.Neo4j = &config.Neo4j{URI: out.Neo4j.URI, User: out.Neo4j.User, Password: out.Neo4j.Password}
	}
	return sc, nil
}

// findUniqueBlock returns the block of the given type, or nil. A second
// block of the same type is reported as a diagnostic.
func findUniqueBlock(blocks hcl.Blocks, name string) (*hcl.Block, hcl.Diagnostics) {
	var found *hcl.Block
	var diags hcl.Diagnostics

	for _, block := range blocks {
		if block.Type != name {
			continue
		}
		if found != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate \"" + name + "\" block",
				Detail:   "Only one \"" + name + "\" block is allowed per scenario; the first is at " + found.DefRange.String() + ".",
				Subject:  &block.DefRange,
			})
			continue
		}
		found = block
	}
	return found, diags
}

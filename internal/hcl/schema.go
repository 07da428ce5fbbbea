package hcl

import "github.com/hashicorp/hcl/v2"

// rootSchema lists every top-level block a scenario file may contain.
var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "simulation"},
		{Type: "sequence", LabelNames: []string{"type"}},
		{Type: "phantom", LabelNames: []string{"type"}},
		{Type: "reconstruction"},
		{Type: "output"},
	},
}

type simulationBlock struct {
	Name         string    `hcl:"name,optional"`
	T1           *float64  `hcl:"t1,optional"`
	T2           *float64  `hcl:"t2,optional"`
	D            *float64  `hcl:"d,optional"`
	T2Dash       *float64  `hcl:"t2dash,optional"`
	MinMagnitude *float64  `hcl:"min_magnitude,optional"`
	MaxStates    *int      `hcl:"max_states,optional"`
	Eviction     string    `hcl:"eviction,optional"`
	KResolution  *int      `hcl:"k_resolution,optional"`
	MaxOrder     *int      `hcl:"max_order,optional"`
	Nyquist      []float64 `hcl:"nyquist,optional"`
	Workers      *int      `hcl:"workers,optional"`
	ChunkSize    *int      `hcl:"chunk_size,optional"`
	Normalize    string    `hcl:"normalize,optional"`
}

type sequenceBlock struct {
	Matrix        []int             `hcl:"matrix,optional"`
	FlipAngle     float64           `hcl:"flip_angle,optional"`
	Phase         float64           `hcl:"phase,optional"`
	Delay         float64           `hcl:"delay,optional"`
	Dwell         float64           `hcl:"dwell,optional"`
	Prephase      float64           `hcl:"prephase,optional"`
	Tail          float64           `hcl:"tail,optional"`
	SpoilerMoment float64           `hcl:"spoiler_moment,optional"`
	RFSpoiling    bool              `hcl:"rf_spoiling,optional"`
	EchoTime      float64           `hcl:"echo_time,optional"`
	Spokes        int               `hcl:"spokes,optional"`
	Samples       int               `hcl:"samples,optional"`
	GoldenAngle   bool              `hcl:"golden_angle,optional"`
	Repetitions   []repetitionBlock `hcl:"repetition,block"`
}

type repetitionBlock struct {
	Pulse  *pulseBlock  `hcl:"pulse,block"`
	Events []eventBlock `hcl:"event,block"`
}

type pulseBlock struct {
	Usage    string  `hcl:"usage,optional"`
	Angle    float64 `hcl:"angle,optional"`
	Phase    float64 `hcl:"phase,optional"`
	Duration float64 `hcl:"duration,optional"`
}

type eventBlock struct {
	Duration float64   `hcl:"duration"`
	Gradient []float64 `hcl:"gradient,optional"`
	ADC      bool      `hcl:"adc,optional"`
	ADCPhase float64   `hcl:"adc_phase,optional"`
	Repeat   int       `hcl:"repeat,optional"`
}

type phantomBlock struct {
	Shape          []int        `hcl:"shape,optional"`
	FOV            []float64    `hcl:"fov,optional"`
	Path           string       `hcl:"path,optional"`
	Tissue         *tissueBlock `hcl:"tissue,block"`
	Background     *tissueBlock `hcl:"background,block"`
	Disks          []diskBlock  `hcl:"disk,block"`
	Crop           *cropBlock   `hcl:"crop,block"`
	Resample       []int        `hcl:"resample,optional"`
	PointThreshold *float64     `hcl:"point_threshold,optional"`
}

type tissueBlock struct {
	PD     float64 `hcl:"pd"`
	T1     float64 `hcl:"t1"`
	T2     float64 `hcl:"t2"`
	B0     float64 `hcl:"b0,optional"`
	D      float64 `hcl:"d,optional"`
	T2Dash float64 `hcl:"t2dash,optional"`
	B1     float64 `hcl:"b1,optional"`
}

type diskBlock struct {
	Center []float64   `hcl:"center"`
	Radius float64     `hcl:"radius"`
	Tissue tissueBlock `hcl:"tissue,block"`
}

type cropBlock struct {
	Lo []int `hcl:"lo"`
	Hi []int `hcl:"hi"`
}

type reconstructionBlock struct {
	Shape        []int  `hcl:"shape,optional"`
	Density      string `hcl:"density,optional"`
	NonCartesian bool   `hcl:"non_cartesian,optional"`
}

type outputBlock struct {
	Trace string      `hcl:"trace,optional"`
	Image string      `hcl:"image,optional"`
	Graph string      `hcl:"graph,optional"`
	Neo4j *neo4jBlock `hcl:"neo4j,block"`
}

type neo4jBlock struct {
	URI      string `hcl:"uri"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
}

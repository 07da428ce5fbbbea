package config

// Scenario is one complete simulation run description.
type Scenario struct {
	Simulation     Simulation
	Sequence       *Sequence
	Phantom        *Phantom
	Reconstruction *Reconstruction
	Output         Output
}

// Simulation holds the pre-pass and main-pass settings.
type Simulation struct {
	Name string

	T1, T2, D    *float64
	T2Dash       *float64
	MinMagnitude *float64
	MaxStates    *int
	Eviction     string
	KResolution  *int
	MaxOrder     *int
	Nyquist      []float64

	Workers   *int
	ChunkSize *int
	Normalize string
}

// Sequence types.
const (
	SequenceFID      = "fid"
	SequenceGRE      = "gre"
	SequenceSpinEcho = "spin_echo"
	SequenceRadial   = "radial"
	SequenceCustom   = "custom"
)

// Sequence selects a generator by Type or, for SequenceCustom, lists the
// repetitions explicitly.
type Sequence struct {
	Type string

	Matrix        []int
	FlipAngle     float64
	Phase         float64
	Delay         float64
	Dwell         float64
	Prephase      float64
	Tail          float64
	SpoilerMoment float64
	RFSpoiling    bool
	EchoTime      float64
	Spokes        int
	Samples       int
	GoldenAngle   bool

	Repetitions []Repetition
}

// Repetition is one pulse followed by its events.
type Repetition struct {
	Pulse  Pulse
	Events []Event
}

// Pulse is an instantaneous RF pulse.
type Pulse struct {
	Usage    string
	Angle    float64
	Phase    float64
	Duration float64
}

// Event is a free precession interval.
type Event struct {
	Duration float64
	Gradient []float64
	ADC      bool
	ADCPhase float64
	// Repeat expands the event this many times; zero means once.
	Repeat int
}

// Phantom types.
const (
	PhantomUniform = "uniform"
	PhantomDisks   = "disks"
	PhantomFile    = "file"
)

// Phantom describes the simulated object.
type Phantom struct {
	Type string

	Shape []int
	FOV   []float64
	Path  string

	Tissue     *Tissue
	Background *Tissue
	Disks      []Disk

	// Crop keeps voxels in [CropLo, CropHi) when both are set.
	CropLo, CropHi []int
	Resample       []int
	// PointThreshold converts a grid to a point cloud of voxels with PD
	// above it.
	PointThreshold *float64
}

// Tissue mirrors phantom.Tissue.
type Tissue struct {
	PD, T1, T2, B0, D float64
	T2Dash, B1        float64
}

// Disk is a cylinder of tissue; coordinates are fractions of the FOV.
type Disk struct {
	Center []float64
	Radius float64
	Tissue Tissue
}

// Reconstruction configures the adjoint reconstruction. A nil
// Reconstruction in the Scenario skips it.
type Reconstruction struct {
	Shape        []int
	Density      string
	NonCartesian bool
}

// Output lists the artefacts written after a run. Empty paths are skipped.
type Output struct {
	Trace string
	Image string
	Graph string
	Neo4j *Neo4j
}

// Neo4j holds connection settings for the graph export.
type Neo4j struct {
	URI      string
	User     string
	Password string
}

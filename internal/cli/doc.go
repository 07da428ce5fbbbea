// Package cli turns the pdgsim command line into an app.Config.
//
// Scenario paths come from -scenario, its shorthand -s, and any positional
// arguments, in that order; all of them are merged into one scenario by the
// HCL loader. The remaining flags select the run environment rather than the
// physics:
//
//	-device            "cpu" or "cpu:N" to fix the main-pass worker count
//	-cache-dir         persistent graph store; empty keeps graphs in memory
//	-output-dir        base for relative output paths of the scenario
//	-log-level         debug, info, warn or error
//	-log-format        text or json
//	-healthcheck-port  serves /health and /metrics when non-zero
//	-trace-exporter    none or stdout
//
// Invalid flag values are reported as an *ExitError with code 2. Running
// without any scenario path prints the usage and exits cleanly.
package cli

// Package config defines the format-agnostic scenario model: what to
// simulate, on which phantom, how to reconstruct it and where to write the
// results. The Loader interface is implemented per file format; the HCL
// implementation lives in internal/hcl.
//
// Optional numeric settings are pointers. A nil pointer means the setting was
// not given and the pass default applies.
package config

package config

import "context"

// Loader reads one or more scenario files and merges them into a Scenario.
type Loader interface {
	Load(ctx context.Context, paths ...string) (*Scenario, error)
}

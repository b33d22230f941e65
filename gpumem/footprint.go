package gpumem

import (
	"fmt"

	"github.com/docker/go-units"
)

// Footprint is an amount of CPU and GPU memory in bytes.
type Footprint struct {
	CPU uint64
	GPU uint64
}

// Add returns f + o.
func (f Footprint) Add(o Footprint) Footprint {
	return Footprint{CPU: f.CPU + o.CPU, GPU: f.GPU + o.GPU}
}

// Sub returns f - o. Components never go below zero.
func (f Footprint) Sub(o Footprint) Footprint {
	return Footprint{CPU: sub(f.CPU, o.CPU), GPU: sub(f.GPU, o.GPU)}
}

func sub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// IsZero reports whether both components are zero.
func (f Footprint) IsZero() bool { return f.CPU == 0 && f.GPU == 0 }

// String returns "cpu=1.5MiB gpu=256KiB".
func (f Footprint) String() string {
	return fmt.Sprintf("cpu=%s gpu=%s", units.BytesSize(float64(f.CPU)), units.BytesSize(float64(f.GPU)))
}

// fits reports whether f stays within the ceilings. A zero ceiling is
// unlimited.
func (f Footprint) fits(cpuMax, gpuMax uint64) bool {
	return (cpuMax == 0 || f.CPU <= cpuMax) && (gpuMax == 0 || f.GPU <= gpuMax)
}

// Stats is a snapshot of the manager's registries and budget.
type Stats struct {
	// Committed is the memory attributed to all registered resources.
	Committed Footprint

	// Ceiling is the last ceiling read from the system information.
	Ceiling Footprint

	// Counts holds the number of entries per resource kind.
	Counts map[Kind]int

	// IdleBricks is the number of resident bricks without users.
	IdleBricks int

	// Evictions is the total number of bricks evicted.
	Evictions uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	ceil := func(v uint64) string {
		if v == 0 {
			return "unlimited"
		}
		return units.BytesSize(float64(v))
	}
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return fmt.Sprintf("Memory[cpu %s/%s, gpu %s/%s, %d resources, %d idle bricks, %d evictions]",
		units.BytesSize(float64(s.Committed.CPU)), ceil(s.Ceiling.CPU),
		units.BytesSize(float64(s.Committed.GPU)), ceil(s.Ceiling.GPU),
		n, s.IdleBricks, s.Evictions)
}

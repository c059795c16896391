package pool

import (
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/edgecomet/httpbench/internal/common/configtypes"
)

// DefaultMaxWorkers caps the pool regardless of core count
const DefaultMaxWorkers = configtypes.DefaultMaxWorkers

// CoreProvider reports how many processing cores are available
type CoreProvider interface {
	CoreCount() (int, error)
}

// SystemCores reads the logical core count of the host via gopsutil
type SystemCores struct{}

// CoreCount implements CoreProvider
func (SystemCores) CoreCount() (int, error) {
	return cpu.Counts(true)
}

// StaticCores is a fixed core count, used to pin the worker count
type StaticCores int

// CoreCount implements CoreProvider
func (s StaticCores) CoreCount() (int, error) {
	return int(s), nil
}

// WorkerCount returns min(ceiling, cores), never less than 1.
// An undetectable core count counts as 1 core; a ceiling <= 0 means DefaultMaxWorkers.
func WorkerCount(ceiling int, cores CoreProvider) int {
	if ceiling <= 0 {
		ceiling = DefaultMaxWorkers
	}

	n := 1
	if cores != nil {
		if c, err := cores.CoreCount(); err == nil && c > 0 {
			n = c
		}
	}

	if n > ceiling {
		n = ceiling
	}
	return n
}

// NormalizeRequests replaces a non-positive requests-per-worker value with def
func NormalizeRequests(n, def int) int {
	if def <= 0 {
		def = configtypes.DefaultRequestsPerWorker
	}
	if n <= 0 {
		return def
	}
	return n
}

// ParseRequests parses a requests-per-worker argument.
// Non-numeric or non-positive input silently yields def.
func ParseRequests(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return NormalizeRequests(0, def)
	}
	return NormalizeRequests(n, def)
}

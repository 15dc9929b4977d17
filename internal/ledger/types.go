package ledger

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusTimeout Status = "TIMEOUT"
	StatusMemout  Status = "MEMOUT"
	StatusAbort   Status = "ABORT"
	StatusCrashed Status = "CRASHED"
)

// precedence orders statuses so failures are never hidden behind successes.
var precedence = map[Status]int{
	StatusSuccess: 0,
	StatusTimeout: 1,
	StatusMemout:  2,
	StatusAbort:   3,
	StatusCrashed: 4,
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := precedence[st]; !ok {
		return "", fmt.Errorf("unknown run status %q", s)
	}
	return st, nil
}

// Worse returns whichever status dominates.
func Worse(a, b Status) Status {
	if precedence[b] > precedence[a] {
		return b
	}
	return a
}

type Origin string

const (
	Observed  Origin = "observed"
	Estimated Origin = "estimated"
)

type RunKey struct {
	ConfigID string `json:"config_id"`
	Instance string `json:"instance"`
	Seed     int64  `json:"seed"`
}

func (k RunKey) String() string {
	return fmt.Sprintf("(%s | %s | %d)", k.ConfigID, k.Instance, k.Seed)
}

type RunValue struct {
	Cost    float64 `json:"cost"`
	Runtime float64 `json:"runtime"`
	Status  Status  `json:"status"`
	Origin  Origin  `json:"origin"`
}

// InstanceSeed is one evaluation slot of a configuration.
type InstanceSeed struct {
	Instance string
	Seed     int64
}

// Aggregation names how repeated observations of one key are resolved.
// Ledgers can only be merged when they aggregate the same way.
type Aggregation string

const (
	AggregateMean   Aggregation = "mean"
	AggregateMedian Aggregation = "median"
)

func (a Aggregation) Apply(values []float64) float64 {
	if a == AggregateMedian {
		return Median(values)
	}
	return Mean(values)
}

// Mean is the default aggregation. It sums in ascending order so the result
// does not depend on insertion order. Empty input yields NaN.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// AggregateByName maps a configuration name onto an Aggregation.
func AggregateByName(name string) (Aggregation, error) {
	switch name {
	case "", "mean":
		return AggregateMean, nil
	case "median":
		return AggregateMedian, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q", name)
	}
}

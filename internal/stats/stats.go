// Package stats computes penalized averages and comparison tables from
// per-instance losses.
package stats

import (
	"math"
	"sort"
)

// Penalty multiplies the cutoff for runs that did not finish in time.
const Penalty = 10

type PAR10 struct {
	Train    float64 `json:"train"`
	Test     float64 `json:"test"`
	Combined float64 `json:"combined"`
}

// Censor replaces a loss at or above cutoff with the PAR10 penalty.
func Censor(loss, cutoff float64) float64 {
	if loss >= cutoff {
		return cutoff * Penalty
	}
	return loss
}

// CalculatePAR10 averages censored losses over the train instances, the test
// instances, and every instance in losses. Instances in neither partition
// only count towards Combined. An empty partition yields NaN.
func CalculatePAR10(losses map[string]float64, cutoff float64, train, test []string) PAR10 {
	inTrain := toSet(train)
	inTest := toSet(test)

	var tr, te, all []float64
	for _, inst := range sortedKeys(losses) {
		c := Censor(losses[inst], cutoff)
		all = append(all, c)
		if inTrain[inst] {
			tr = append(tr, c)
		}
		if inTest[inst] {
			te = append(te, c)
		}
	}
	return PAR10{Train: mean(tr), Test: mean(te), Combined: mean(all)}
}

// CountTimeouts counts the instances whose loss reached the cutoff. A nil
// instance list counts over all of losses.
func CountTimeouts(losses map[string]float64, cutoff float64, instances []string) int {
	if instances == nil {
		instances = sortedKeys(losses)
	}
	n := 0
	for _, inst := range instances {
		if c, ok := losses[inst]; ok && c >= cutoff {
			n++
		}
	}
	return n
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func toSet(list []string) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, s := range list {
		out[s] = true
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

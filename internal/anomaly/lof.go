// Package anomaly provides vehicle-day outlier removers for the roaming
// statistics.
package anomaly

import (
	"fmt"
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"cab-roaming/internal/aggregate"
)

// DefaultContamination is the expected share of outlier vehicle-days.
const DefaultContamination = 0.01

// Nop keeps every row.
type Nop struct{}

func (Nop) Filter(days []aggregate.VehicleDay, contamination float64) ([]aggregate.VehicleDay, error) {
	if err := checkContamination(contamination); err != nil {
		return nil, err
	}
	return append([]aggregate.VehicleDay(nil), days...), nil
}

// LOF scores every vehicle-day by the Local Outlier Factor of its roaming
// distance and drops the floor(contamination*n) highest scores.
type LOF struct {
	// K is the neighbourhood size; 0 picks one from the number of rows.
	K int
}

type neighbor struct {
	index    int
	distance float64
}

type lofData struct {
	neighbors []neighbor
	kDistance float64
	lrd       float64
}

func (l LOF) Filter(days []aggregate.VehicleDay, contamination float64) ([]aggregate.VehicleDay, error) {
	if err := checkContamination(contamination); err != nil {
		return nil, err
	}
	n := len(days)
	drop := int(math.Floor(contamination * float64(n)))
	k := l.K
	if k <= 0 {
		k = chooseK(n)
	}
	if drop == 0 || n < k+1 {
		return append([]aggregate.VehicleDay(nil), days...), nil
	}

	scores := Scores(distances(days), k)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// highest score first, earlier rows win ties
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	removed := make([]bool, n)
	for _, i := range order[:drop] {
		removed[i] = true
	}

	out := make([]aggregate.VehicleDay, 0, n-drop)
	for i, d := range days {
		if !removed[i] {
			out = append(out, d)
		}
	}
	log.Printf("lof k=%d removed %d of %d vehicle-days (top score %.2f)", k, drop, n, scores[order[0]])
	return out, nil
}

// Scores returns the Local Outlier Factor of every value using k neighbours.
// Scores near 1 are inliers; larger scores sit in sparser regions than their
// neighbours.
func Scores(values []float64, k int) []float64 {
	n := len(values)
	scores := make([]float64, n)
	if n < k+1 || k <= 0 {
		for i := range scores {
			scores[i] = 1
		}
		return scores
	}

	sorted := append([]float64(nil), values...)
	inds := make([]int, n)
	floats.Argsort(sorted, inds)

	// Step 1: k nearest neighbours. In one dimension they lie within k
	// positions of each value in sorted order.
	data := make([]lofData, n)
	for p := 0; p < n; p++ {
		var cands []neighbor
		for q := max(0, p-k); q < min(n, p+k+1); q++ {
			if q == p {
				continue
			}
			cands = append(cands, neighbor{index: q, distance: math.Abs(sorted[p] - sorted[q])})
		}
		sort.SliceStable(cands, func(a, b int) bool { return cands[a].distance < cands[b].distance })
		data[p].neighbors = cands[:k]
		data[p].kDistance = cands[k-1].distance
	}

	// Step 2: local reachability density
	for p := range data {
		data[p].lrd = reachDensity(p, data)
	}

	// Step 3: local outlier factor, mapped back to input order
	for p := range data {
		scores[inds[p]] = outlierFactor(p, data)
	}
	return scores
}

// reachDensity is |N_k(A)| / Σ max(k-distance(B), d(A,B)) over B in N_k(A).
func reachDensity(p int, data []lofData) float64 {
	sum := 0.0
	for _, nb := range data[p].neighbors {
		sum += math.Max(data[nb.index].kDistance, nb.distance)
	}
	if sum == 0 {
		return math.Inf(1)
	}
	return float64(len(data[p].neighbors)) / sum
}

// outlierFactor is the mean ratio LRD(B)/LRD(A) over the neighbours B of A.
func outlierFactor(p int, data []lofData) float64 {
	lrd := data[p].lrd
	if lrd == 0 || math.IsInf(lrd, 1) {
		return 1
	}
	sum := 0.0
	valid := 0
	for _, nb := range data[p].neighbors {
		nl := data[nb.index].lrd
		if nl > 0 && !math.IsInf(nl, 1) {
			sum += nl / lrd
			valid++
		}
	}
	if valid == 0 {
		return 1
	}
	return sum / float64(valid)
}

func chooseK(n int) int {
	switch {
	case n < 50:
		return max(2, n/5)
	case n < 1000:
		return 10
	default:
		return 20
	}
}

func distances(days []aggregate.VehicleDay) []float64 {
	out := make([]float64, len(days))
	for i, d := range days {
		out[i] = d.RoamDistance
	}
	return out
}

func checkContamination(c float64) error {
	if !(c > 0 && c < 1) {
		return fmt.Errorf("contamination must be in (0, 1), got %v", c)
	}
	return nil
}

// New returns the remover registered under name: "none" or "lof".
func New(name string) (aggregate.OutlierRemover, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "nop":
		return Nop{}, nil
	case "lof":
		return LOF{}, nil
	default:
		return nil, fmt.Errorf("unknown outlier filter %q", name)
	}
}

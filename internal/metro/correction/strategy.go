package correction

import (
	"fmt"
	"math"

	"github.com/metropath/pkg/metro/models"
)

// Policy selects how transfer edges are discovered.
type Policy string

const (
	// PolicyCurated uses only the catalog's explicit edge removals and additions.
	PolicyCurated Policy = "curated"
	// PolicyProximity infers transfers from station distance and ignores catalog edge patches.
	PolicyProximity Policy = "proximity"
	// PolicyBoth infers transfers first, then applies catalog edge patches on top.
	PolicyBoth Policy = "both"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyCurated, PolicyProximity, PolicyBoth:
		return p, nil
	default:
		return "", fmt.Errorf("unknown transfer policy %q", s)
	}
}

// Strategy is the configured transfer discovery variant.
// Threshold is only meaningful for proximity and both.
type Strategy struct {
	Policy    Policy
	Threshold float64
}

func Curated() Strategy {
	return Strategy{Policy: PolicyCurated}
}

func Proximity(threshold float64) Strategy {
	return Strategy{Policy: PolicyProximity, Threshold: threshold}
}

func Both(threshold float64) Strategy {
	return Strategy{Policy: PolicyBoth, Threshold: threshold}
}

func (s Strategy) infers() bool {
	return s.Policy == PolicyProximity || s.Policy == PolicyBoth
}

func (s Strategy) patchesEdges() bool {
	return s.Policy == PolicyCurated || s.Policy == PolicyBoth
}

func (s Strategy) validate() error {
	if _, err := ParsePolicy(string(s.Policy)); err != nil {
		return err
	}
	if s.infers() && !(s.Threshold > 0) {
		return fmt.Errorf("proximity threshold must be positive, got %v", s.Threshold)
	}
	return nil
}

func (s Strategy) String() string {
	if s.infers() {
		return fmt.Sprintf("%s(%g)", s.Policy, s.Threshold)
	}
	return string(s.Policy)
}

// Distance is the planar distance between two stations measured in degrees.
// It is not geodesic; thresholds are expressed in the same unit.
func Distance(a, b models.Station) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng)
}

// InferTransfers returns a transfer edge pair for every unordered pair of
// stations on different lines closer than threshold. Output order follows
// the input order of the stations.
func InferTransfers(stations []models.Station, threshold float64) []models.Edge {
	var edges []models.Edge
	for i := range stations {
		a := stations[i]
		for j := i + 1; j < len(stations); j++ {
			b := stations[j]
			if a.LineID == b.LineID {
				continue
			}
			if Distance(a, b) < threshold {
				e := models.Edge{From: a.ID, To: b.ID, Class: models.Transfer}
				edges = append(edges, e, e.Reverse())
			}
		}
	}
	return edges
}

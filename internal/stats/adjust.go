// Package stats provides the multiple-testing corrections
// and exact tests used when scoring datasets and analyses.
package stats

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Eps is the smallest positive double, used as a floor under
// p-values before taking logarithms.
const Eps = math.SmallestNonzeroFloat64

// Correction methods.
const (
	Bonferroni    = "bonferroni"
	Sidak         = "sidak"
	Holm          = "holm"
	HolmSidak     = "holm-sidak"
	SimesHochberg = "simes-hochberg"
	Hommel        = "hommel"
	FDRBH         = "fdr_bh"
	FDRBY         = "fdr_by"
	FDRTSBH       = "fdr_tsbh"
	FDRTSBKY      = "fdr_tsbky"
)

// CorrectionMethods lists every supported method.
var CorrectionMethods = []string{
	Bonferroni, Sidak, Holm, HolmSidak, SimesHochberg,
	Hommel, FDRBH, FDRBY, FDRTSBH, FDRTSBKY,
}

// ErrUnknownMethod is returned for an unsupported correction
// method name.
var ErrUnknownMethod = errors.New("stats: unknown correction method")

// ValidMethod reports whether name is a supported correction
// method.
func ValidMethod(name string) bool {
	for _, m := range CorrectionMethods {
		if m == name {
			return true
		}
	}
	return false
}

// Adjust corrects p-values for multiple testing, returning
// adjusted values in input order. The two-stage FDR methods
// additionally depend on alpha.
func Adjust(p []float64, method string, alpha float64) ([]float64, error) {
	if len(p) == 0 {
		return []float64{}, nil
	}

	switch method {
	case Bonferroni, Sidak:
		n := float64(len(p))
		out := make([]float64, len(p))
		for i, v := range p {
			if method == Bonferroni {
				out[i] = clip1(v * n)
			} else {
				out[i] = clip1(1 - math.Pow(1-v, n))
			}
		}
		return out, nil
	case Holm:
		return stepDown(p, func(i, n int, v float64) float64 {
			return float64(n-i) * v
		}), nil
	case HolmSidak:
		return stepDown(p, func(i, n int, v float64) float64 {
			return 1 - math.Pow(1-v, float64(n-i))
		}), nil
	case SimesHochberg:
		return stepUp(p, func(i, n int, v float64) float64 {
			return float64(n-i) * v
		}), nil
	case Hommel:
		return hommel(p), nil
	case FDRBH:
		return stepUp(p, func(i, n int, v float64) float64 {
			return v * float64(n) / float64(i+1)
		}), nil
	case FDRBY:
		cm := harmonic(len(p))
		return stepUp(p, func(i, n int, v float64) float64 {
			return v * cm * float64(n) / float64(i+1)
		}), nil
	case FDRTSBH:
		return twoStage(p, alpha, false), nil
	case FDRTSBKY:
		return twoStage(p, alpha, true), nil
	default:
		return nil, errors.Wrap(ErrUnknownMethod, method)
	}
}

// Reject flags adjusted p-values at or below alpha.
func Reject(adjusted []float64, alpha float64) []bool {
	out := make([]bool, len(adjusted))
	for i, v := range adjusted {
		out[i] = v <= alpha
	}
	return out
}

// NegLog10 is |-log10(p)|, floored by Eps so exact zeros
// stay finite and p=1 does not go negative.
func NegLog10(p float64) float64 {
	return math.Abs(-math.Log10(p + Eps))
}

// CombinedScore ranks a row by corrected significance scaled
// by effect size magnitude.
func CombinedScore(fdr, effectSize float64) float64 {
	return NegLog10(fdr) * math.Abs(effectSize)
}

func clip1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func harmonic(n int) float64 {
	var s float64
	for i := 1; i <= n; i++ {
		s += 1 / float64(i)
	}
	return s
}

// ascendingOrder returns the permutation sorting p
// ascending.
func ascendingOrder(p []float64) []int {
	order := make([]int, len(p))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return p[order[a]] < p[order[b]] })
	return order
}

// stepDown applies a monotone maximum over ascending sorted
// raw corrections (Holm family).
func stepDown(p []float64, raw func(i, n int, v float64) float64) []float64 {
	n := len(p)
	order := ascendingOrder(p)

	out := make([]float64, n)
	running := math.Inf(-1)
	for i, idx := range order {
		v := raw(i, n, p[idx])
		if v > running {
			running = v
		}
		out[idx] = clip1(running)
	}
	return out
}

// stepUp applies a monotone minimum from the largest sorted
// value downward (Hochberg and FDR families).
func stepUp(p []float64, raw func(i, n int, v float64) float64) []float64 {
	n := len(p)
	order := ascendingOrder(p)

	out := make([]float64, n)
	running := math.Inf(1)
	for i := n - 1; i >= 0; i-- {
		idx := order[i]
		v := raw(i, n, p[idx])
		if v < running {
			running = v
		}
		out[idx] = clip1(running)
	}
	return out
}

// hommel computes Hommel's closed-test adjustment.
func hommel(p []float64) []float64 {
	n := len(p)
	order := ascendingOrder(p)

	sorted := make([]float64, n)
	for i, idx := range order {
		sorted[i] = p[idx]
	}

	a := make([]float64, n)
	copy(a, sorted)

	for m := n; m > 1; m-- {
		cim := math.Inf(1)
		for j := 0; j < m; j++ {
			v := float64(m) * sorted[n-m+j] / float64(j+1)
			if v < cim {
				cim = v
			}
		}
		for j := n - m; j < n-1; j++ {
			if cim > a[j] {
				a[j] = cim
			}
		}
		for j := 0; j < n-m; j++ {
			v := math.Min(float64(m)*sorted[j], cim)
			if v > a[j] {
				a[j] = v
			}
		}
	}

	out := make([]float64, n)
	for i, idx := range order {
		out[idx] = clip1(a[i])
	}
	return out
}

// fdrBH runs the one-stage Benjamini-Hochberg procedure over
// values sorted ascending, returning adjusted values in the
// same sorted order plus the rejection count at alpha.
func fdrBH(sorted []float64, alpha float64) ([]float64, int) {
	n := len(sorted)

	adj := make([]float64, n)
	running := math.Inf(1)
	rejects := 0
	for i := n - 1; i >= 0; i-- {
		ecdf := float64(i+1) / float64(n)
		v := sorted[i] / ecdf
		if v < running {
			running = v
		}
		adj[i] = clip1(running)
		if rejects == 0 && sorted[i] <= ecdf*alpha {
			rejects = i + 1
		}
	}
	return adj, rejects
}

// twoStage runs the two-stage FDR procedure; bky applies the
// Benjamini-Krieger-Yekutieli alpha scaling.
func twoStage(p []float64, alpha float64, bky bool) []float64 {
	n := len(p)
	order := ascendingOrder(p)

	sorted := make([]float64, n)
	for i, idx := range order {
		sorted[i] = p[idx]
	}

	fact := 1.0
	alphaPrime := alpha
	if bky {
		fact = 1 + alpha
		alphaPrime = alpha / fact
	}

	adj, r1 := fdrBH(sorted, alphaPrime)

	if r1 > 0 && r1 < n {
		m0 := float64(n - r1)
		alphaStar := alphaPrime * float64(n) / m0
		adj, _ = fdrBH(sorted, alphaStar)
		for i := range adj {
			adj[i] *= m0 / float64(n)
		}
	}

	out := make([]float64, n)
	for i, idx := range order {
		v := clip1(adj[i] * fact)
		// the m0 rescale can dip below the raw value; keep
		// adjusted p-values bounded below by the input
		if v < p[idx] {
			v = p[idx]
		}
		out[idx] = v
	}
	return out
}

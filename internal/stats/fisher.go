package stats

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/combin"
)

// Test alternatives.
const (
	Greater  = "greater"
	Less     = "less"
	TwoSided = "two-sided"
)

// ErrUnknownAlternative is returned for an unsupported test
// alternative.
var ErrUnknownAlternative = errors.New("stats: unknown test alternative")

// Table is a 2x2 contingency table:
//
//	A B
//	C D
type Table struct {
	A, B, C, D int
}

// OddsRatio is the sample odds ratio AD/BC. It is Inf when
// only BC is zero and NaN when both products are.
func (t Table) OddsRatio() float64 {
	num := float64(t.A) * float64(t.D)
	den := float64(t.B) * float64(t.C)
	return num / den
}


// logHypergeomPMF is log P(X = x) for X hypergeometric with
// population n, successes k, draws r.
func logHypergeomPMF(x, n, k, r int) float64 {
	if x < 0 || x > r || x > k || r-x > n-k {
		return math.Inf(-1)
	}
	return combin.LogGeneralizedBinomial(float64(k), float64(x)) +
		combin.LogGeneralizedBinomial(float64(n-k), float64(r-x)) -
		combin.LogGeneralizedBinomial(float64(n), float64(r))
}

// FisherExact computes the exact test p-value for a 2x2
// table under the given alternative.
func FisherExact(t Table, alternative string) (float64, error) {
	n := t.A + t.B + t.C + t.D
	k := t.A + t.C // column one total
	r := t.A + t.B // row one total

	if n == 0 {
		return 1, nil
	}

	lo := 0
	if r-(n-k) > 0 {
		lo = r - (n - k)
	}
	hi := r
	if k < hi {
		hi = k
	}

	switch alternative {
	case Greater:
		return sumPMF(t.A, hi, n, k, r), nil
	case Less:
		return sumPMF(lo, t.A, n, k, r), nil
	case TwoSided:
		observed := logHypergeomPMF(t.A, n, k, r)
		cutoff := observed + math.Log(1+1e-7)
		var p float64
		for x := lo; x <= hi; x++ {
			if lp := logHypergeomPMF(x, n, k, r); lp <= cutoff {
				p += math.Exp(lp)
			}
		}
		return clip1(p), nil
	default:
		return 0, errors.Wrap(ErrUnknownAlternative, alternative)
	}
}

func sumPMF(from, to, n, k, r int) float64 {
	var p float64
	for x := from; x <= to; x++ {
		p += math.Exp(logHypergeomPMF(x, n, k, r))
	}
	return clip1(p)
}

// SafeFisher runs the exact test over a table whose cells
// may be non-integral (shuffle means), rounding cells for
// the test and adding 0.5 to every cell for the odds ratio
// so zero cells never fail. A non-finite ratio is reported
// as nil.
func SafeFisher(a, b, c, d float64, alternative string) (*float64, float64, error) {
	t := Table{
		A: int(math.Round(a)),
		B: int(math.Round(b)),
		C: int(math.Round(c)),
		D: int(math.Round(d)),
	}
	p, err := FisherExact(t, alternative)
	if err != nil {
		return nil, 0, err
	}

	or := ((a + 0.5) * (d + 0.5)) / ((b + 0.5) * (c + 0.5))
	if math.IsNaN(or) || math.IsInf(or, 0) {
		return nil, p, nil
	}
	return &or, p, nil
}

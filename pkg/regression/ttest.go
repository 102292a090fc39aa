package regression

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
)

// TTestResult is the outcome of a two-sample Welch t-test.
type TTestResult struct {
	TStat  float64
	PValue float64
	MeanA  float64
	MeanB  float64
	DF     float64
}

// WelchTTest compares the means of two samples without assuming equal
// variance (Welch's t-test, two-sided). Drift detection splits an observed
// window in half and asks whether the halves differ.
func WelchTTest(a, b []float64) (TTestResult, error) {
	if len(a) < 2 || len(b) < 2 {
		return TTestResult{}, apperrors.InsufficientData("t-test needs at least 2 samples per side, got %d and %d", len(a), len(b))
	}

	meanA, varA := stat.MeanVariance(a, nil)
	meanB, varB := stat.MeanVariance(b, nil)
	na, nb := float64(len(a)), float64(len(b))

	seSq := varA/na + varB/nb
	res := TTestResult{MeanA: meanA, MeanB: meanB}
	if seSq <= 0 {
		// Both samples constant: identical means are a certain match,
		// different means a certain difference.
		if meanA == meanB {
			res.PValue = 1
		}
		return res, nil
	}

	res.TStat = (meanA - meanB) / math.Sqrt(seSq)
	res.DF = seSq * seSq /
		((varA/na)*(varA/na)/(na-1) + (varB/nb)*(varB/nb)/(nb-1))

	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: res.DF}
	res.PValue = 2 * t.CDF(-math.Abs(res.TStat))
	return res, nil
}

// Package regression implements the ordinary least-squares core used for
// baseline training, plus the two-sample test used by drift detection.
package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
)

const (
	// constTol is the max-min spread below which a column counts as
	// constant.
	constTol = 1e-12
	// rankTol is the relative singular-value cutoff for rank deficiency.
	rankTol = 1e-10
)

// Model is a fitted linear model: y = Intercept + sum(Coefficients[i] * x[i]).
type Model struct {
	Intercept    float64
	Coefficients []float64
	// Means holds each regressor's mean over the training rows, in column
	// order. Deviation attribution compares later periods against these.
	Means    []float64
	RSquared float64
	RMSE     float64
	N        int
}

// Predict evaluates the model for one row of regressor values.
func (m *Model) Predict(values []float64) (float64, error) {
	if len(values) != len(m.Coefficients) {
		return 0, apperrors.Validation("model expects %d feature values, got %d", len(m.Coefficients), len(values))
	}
	y := m.Intercept
	for i, c := range m.Coefficients {
		y += c * values[i]
	}
	return y, nil
}

// Fit runs ordinary least squares over n rows of k regressors. The design
// matrix gets an intercept column; the normal equations are solved by
// Cholesky factorization with an SVD fallback for ill-conditioned but
// full-rank systems. A rank-deficient matrix (constant column, collinear
// columns) fails with a degenerate-model error; the fit never returns NaN
// or undefined coefficients.
func Fit(rows [][]float64, ys []float64) (*Model, error) {
	n := len(rows)
	if n == 0 || n != len(ys) {
		return nil, apperrors.Internal(fmt.Errorf("regression input shape mismatch: %d rows, %d targets", n, len(ys)))
	}
	k := len(rows[0])
	for i, row := range rows {
		if len(row) != k {
			return nil, apperrors.Internal(fmt.Errorf("regression row %d has %d values, want %d", i, len(row), k))
		}
	}
	if n < k+1 {
		return nil, apperrors.InsufficientData("need at least %d samples to fit %d features, got %d", k+1, k, n)
	}

	for j := 0; j < k; j++ {
		lo, hi := rows[0][j], rows[0][j]
		for i := 1; i < n; i++ {
			v := rows[i][j]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi-lo < constTol {
			return nil, apperrors.DegenerateModel("feature column %d is constant over the training window", j)
		}
	}

	// Design matrix with a leading intercept column.
	p := k + 1
	X := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		for j := 0; j < k; j++ {
			X.Set(i, j+1, rows[i][j])
		}
		y.SetVec(i, ys[i])
	}

	beta, err := solve(X, y)
	if err != nil {
		return nil, err
	}

	model := &Model{
		Intercept:    beta.AtVec(0),
		Coefficients: make([]float64, k),
		Means:        make([]float64, k),
		N:            n,
	}
	for j := 0; j < k; j++ {
		model.Coefficients[j] = beta.AtVec(j + 1)
	}
	for j := 0; j < k; j++ {
		col := make([]float64, n)
		mat.Col(col, j+1, X)
		model.Means[j] = stat.Mean(col, nil)
	}

	if model.hasNonFinite() {
		return nil, apperrors.DegenerateModel("fit produced non-finite coefficients")
	}

	var fitted mat.VecDense
	fitted.MulVec(X, beta)
	meanY := stat.Mean(ys, nil)
	ssRes, ssTot := 0.0, 0.0
	for i := 0; i < n; i++ {
		r := ys[i] - fitted.AtVec(i)
		ssRes += r * r
		d := ys[i] - meanY
		ssTot += d * d
	}
	if ssTot > 0 {
		model.RSquared = 1 - ssRes/ssTot
	}
	model.RMSE = math.Sqrt(ssRes / float64(n))
	return model, nil
}

// solve runs Cholesky on the normal equations, falling back to SVD when the
// factorization fails. The SVD path diagnoses before solving: a singular
// value below rankTol relative to the largest means the matrix is genuinely
// rank-deficient, and the caller gets an error instead of a pseudo-inverse
// guess.
func solve(X *mat.Dense, y *mat.VecDense) (*mat.VecDense, error) {
	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	p, _ := xtx.Dims()

	sym := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := 0; j <= i; j++ {
			sym.SetSym(i, j, xtx.At(i, j))
		}
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), y)

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); ok {
		var beta mat.VecDense
		if err := chol.SolveVecTo(&beta, &xty); err == nil {
			return &beta, nil
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(X, mat.SVDThin); !ok {
		return nil, apperrors.DegenerateModel("singular value decomposition failed to converge")
	}
	s := svd.Values(nil)
	if len(s) == 0 || s[0] <= 0 || s[len(s)-1] < rankTol*s[0] {
		return nil, apperrors.DegenerateModel("feature matrix is rank-deficient (collinear or constant features)")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var uty mat.VecDense
	uty.MulVec(u.T(), y)
	for i := range s {
		uty.SetVec(i, uty.AtVec(i)/s[i])
	}
	var beta mat.VecDense
	beta.MulVec(&v, &uty)
	return &beta, nil
}

func (m *Model) hasNonFinite() bool {
	if math.IsNaN(m.Intercept) || math.IsInf(m.Intercept, 0) {
		return true
	}
	for _, c := range m.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return true
		}
	}
	return false
}

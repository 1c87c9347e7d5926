package tracker

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// kalmanState is the 8 dimensional state of a track, box centre, aspect
// ratio, height and their velocities, with its covariance
type kalmanState struct {
	mean *mat.VecDense
	cov  *mat.Dense
}

// kalmanFilter is a constant velocity Kalman filter in xyah space
type kalmanFilter struct {
	stdPos float64
	stdVel float64
	// motion is the 8x8 state transition matrix
	motion *mat.Dense
	// observe is the 4x8 projection to measurement space
	observe *mat.Dense
}

func newKalmanFilter(stdPos, stdVel float64) *kalmanFilter {

	motion := mat.NewDense(8, 8, nil)

	for i := 0; i < 8; i++ {
		motion.Set(i, i, 1)
	}

	for i := 0; i < 4; i++ {
		motion.Set(i, 4+i, 1)
	}

	observe := mat.NewDense(4, 8, nil)

	for i := 0; i < 4; i++ {
		observe.Set(i, i, 1)
	}

	return &kalmanFilter{
		stdPos:  stdPos,
		stdVel:  stdVel,
		motion:  motion,
		observe: observe,
	}
}

// diag builds a square matrix with the squares of std on its diagonal
func diag(std []float64) *mat.Dense {

	m := mat.NewDense(len(std), len(std), nil)

	for i, s := range std {
		m.Set(i, i, s*s)
	}

	return m
}

// initiate creates the state of a new track from its first measurement
func (kf *kalmanFilter) initiate(meas [4]float64) kalmanState {

	mean := mat.NewVecDense(8, nil)

	for i, v := range meas {
		mean.SetVec(i, v)
	}

	h := meas[3]

	return kalmanState{
		mean: mean,
		cov: diag([]float64{
			2 * kf.stdPos * h, 2 * kf.stdPos * h, 1e-2, 2 * kf.stdPos * h,
			10 * kf.stdVel * h, 10 * kf.stdVel * h, 1e-5, 10 * kf.stdVel * h,
		}),
	}
}

// predict advances the state one frame
func (kf *kalmanFilter) predict(s *kalmanState) {

	h := s.mean.AtVec(3)
	noise := diag([]float64{
		kf.stdPos * h, kf.stdPos * h, 1e-2, kf.stdPos * h,
		kf.stdVel * h, kf.stdVel * h, 1e-5, kf.stdVel * h,
	})

	mean := mat.NewVecDense(8, nil)
	mean.MulVec(kf.motion, s.mean)

	var fp, cov mat.Dense
	fp.Mul(kf.motion, s.cov)
	cov.Mul(&fp, kf.motion.T())
	cov.Add(&cov, noise)

	s.mean = mean
	s.cov = &cov
}

// project maps the state into measurement space returning the projected
// mean and the innovation covariance
func (kf *kalmanFilter) project(s kalmanState) (*mat.VecDense, *mat.SymDense) {

	h := s.mean.AtVec(3)
	std := []float64{kf.stdPos * h, kf.stdPos * h, 1e-1, kf.stdPos * h}

	mean := mat.NewVecDense(4, nil)
	mean.MulVec(kf.observe, s.mean)

	var hp, hph mat.Dense
	hp.Mul(kf.observe, s.cov)
	hph.Mul(&hp, kf.observe.T())

	cov := mat.NewSymDense(4, nil)

	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			v := (hph.At(i, j) + hph.At(j, i)) / 2

			if i == j {
				v += std[i] * std[i]
			}

			cov.SetSym(i, j, v)
		}
	}

	return mean, cov
}

// correct folds a new measurement into the state
func (kf *kalmanFilter) correct(s *kalmanState, meas [4]float64) error {

	projMean, projCov := kf.project(*s)

	var chol mat.Cholesky

	if ok := chol.Factorize(projCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	// the covariance is symmetric so solving S*X = H*P gives X = transpose of
	// the Kalman gain
	var hp, gainT mat.Dense
	hp.Mul(kf.observe, s.cov)

	if err := chol.SolveTo(&gainT, &hp); err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	innovation := mat.NewVecDense(4, nil)

	for i := 0; i < 4; i++ {
		innovation.SetVec(i, meas[i]-projMean.AtVec(i))
	}

	var delta mat.VecDense
	delta.MulVec(gainT.T(), innovation)
	s.mean.AddVec(s.mean, &delta)

	var ks, ksk, cov mat.Dense
	ks.Mul(gainT.T(), projCov)
	ksk.Mul(&ks, &gainT)
	cov.Sub(s.cov, &ksk)
	s.cov = &cov

	return nil
}

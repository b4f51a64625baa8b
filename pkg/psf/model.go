package psf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"spotdecomp/pkg/volume"
)

// Parameters holds the Gaussian model fitted on a reference spot. Sigmas
// are in nanometers; SigmaZ is zero for 2-d fits. Amplitude is the peak
// height above background, Background the intensity floor.
type Parameters struct {
	SigmaZ     float64
	SigmaYX    float64
	Amplitude  float64
	Background float64
}

// integratedFactor is the mean value over one voxel of a unit-height
// Gaussian along a single axis, at distance d (nanometers) from the
// Gaussian center. It is the erf-based pixel integration
//
//	sigma*sqrt(pi/2)/voxel * (erf((d+voxel/2)/(sqrt2*sigma)) - erf((d-voxel/2)/(sqrt2*sigma)))
//
// and tends to 1 at d = 0 when the voxel is small against sigma.
func integratedFactor(d, sigma, voxel float64) float64 {
	sqrt2Sigma := math.Sqrt2 * sigma
	scale := sigma * math.Sqrt(math.Pi/2) / voxel
	return scale * (math.Erf((d+voxel/2)/sqrt2Sigma) - math.Erf((d-voxel/2)/sqrt2Sigma))
}

// Grid builds the physical coordinate grid of a patch: one row per axis,
// one column per sample in row-major order, each value the pixel index
// scaled by the voxel size of its axis.
func Grid(shape []int, voxels []float64) [][]float64 {
	rank := len(shape)
	size := 1
	for _, n := range shape {
		size *= n
	}
	grid := make([][]float64, rank)
	for axis := range grid {
		grid[axis] = make([]float64, size)
	}
	coord := make([]int, rank)
	for i := 0; i < size; i++ {
		for axis := 0; axis < rank; axis++ {
			grid[axis][i] = float64(coord[axis]) * voxels[axis]
		}
		for axis := rank - 1; axis >= 0; axis-- {
			coord[axis]++
			if coord[axis] < shape[axis] {
				break
			}
			coord[axis] = 0
		}
	}
	return grid
}

// evaluateModel computes the pixel-integrated Gaussian at one grid sample.
// sigmas has one entry per axis (z first for rank 3).
func evaluateModel(grid [][]float64, i int, center, sigmas, voxels []float64, amplitude, background float64) float64 {
	v := amplitude
	for axis := range grid {
		d := math.Abs(grid[axis][i] - center[axis])
		v *= integratedFactor(d, sigmas[axis], voxels[axis])
	}
	return v + background
}

// FitSpotModel fits the Gaussian model to a reference spot patch by
// minimizing the sum of squared residuals with Nelder-Mead. The Gaussian
// center is held at the patch center; free parameters are the sigmas, the
// amplitude and the background, all kept non-negative. The initial sigmas
// come from the theoretical PSF geometry.
func FitSpotModel(patch *volume.Image, geom Geometry) (Parameters, error) {
	rank := patch.Rank()
	if err := geom.Validate(rank); err != nil {
		return Parameters{}, err
	}

	voxels := geom.VoxelSizes(rank)
	grid := Grid(patch.Shape, voxels)
	center := make([]float64, rank)
	for axis := 0; axis < rank; axis++ {
		center[axis] = float64(patch.Shape[axis]/2) * voxels[axis]
	}

	maxValue := patch.Max()
	minValue := patch.Data[0]
	for _, v := range patch.Data {
		if v < minValue {
			minValue = v
		}
	}

	// parameter vector: [sigmaZ,] sigmaYX, amplitude, background.
	// math.Abs keeps the search unconstrained while the model only ever
	// sees non-negative values.
	var x0 []float64
	if rank == 3 {
		x0 = []float64{geom.PSFZ, geom.PSFYX, maxValue - minValue, minValue}
	} else {
		x0 = []float64{geom.PSFYX, maxValue - minValue, minValue}
	}

	sigmas := make([]float64, rank)
	objective := func(x []float64) float64 {
		var amplitude, background float64
		if rank == 3 {
			sigmas[0] = math.Abs(x[0])
			sigmas[1] = math.Abs(x[1])
			sigmas[2] = math.Abs(x[1])
			amplitude = math.Abs(x[2])
			background = math.Abs(x[3])
		} else {
			sigmas[0] = math.Abs(x[0])
			sigmas[1] = math.Abs(x[0])
			amplitude = math.Abs(x[1])
			background = math.Abs(x[2])
		}
		for axis := range sigmas {
			if sigmas[axis] == 0 {
				return math.Inf(1)
			}
		}
		ssr := 0.0
		for i := range patch.Data {
			r := patch.Data[i] - evaluateModel(grid, i, center, sigmas, voxels, amplitude, background)
			ssr += r * r
		}
		return ssr
	}

	problem := optimize.Problem{Func: objective}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return Parameters{}, fmt.Errorf("gaussian fit failed: %v", err)
	}

	x := result.X
	if rank == 3 {
		return Parameters{
			SigmaZ:     math.Abs(x[0]),
			SigmaYX:    math.Abs(x[1]),
			Amplitude:  math.Abs(x[2]),
			Background: math.Abs(x[3]),
		}, nil
	}
	return Parameters{
		SigmaYX:    math.Abs(x[0]),
		Amplitude:  math.Abs(x[1]),
		Background: math.Abs(x[2]),
	}, nil
}

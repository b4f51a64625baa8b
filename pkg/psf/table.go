package psf

import (
	"fmt"
	"math"
)

// tableOversampling is the number of lookup entries per voxel of distance.
const tableOversampling = 100

// axisTable is the precomputed pixel-integrated Gaussian factor along one
// axis, indexed by discretized distance from the Gaussian center.
type axisTable struct {
	step   float64
	values []float64
}

func (t axisTable) lookup(d float64) float64 {
	idx := int(d/t.step + 0.5)
	if idx >= len(t.values) {
		idx = len(t.values) - 1
	}
	return t.values[idx]
}

// Table holds one precomputed factor table per image axis (z first for
// rank 3). It is built once per decomposition call and shared read-only
// across all region fits.
type Table struct {
	axes []axisTable
}

// Rank returns the number of axes the table covers.
func (t *Table) Rank() int {
	return len(t.axes)
}

// PrecomputeGaussianTable tabulates the erf-based Gaussian factors for
// every axis, covering distances up to maxGrid voxels. sigmaZ must be zero
// for 2-d geometries and positive for 3-d ones.
func PrecomputeGaussianTable(geom Geometry, sigmaZ, sigmaYX float64, maxGrid int) (*Table, error) {
	if sigmaYX <= 0 {
		return nil, fmt.Errorf("sigma yx must be positive, got %f", sigmaYX)
	}
	if maxGrid < 1 {
		return nil, fmt.Errorf("max grid must be at least 1, got %d", maxGrid)
	}

	rank := 2
	if sigmaZ > 0 {
		rank = 3
	}
	if err := geom.Validate(rank); err != nil {
		return nil, err
	}

	voxels := geom.VoxelSizes(rank)
	sigmas := make([]float64, rank)
	if rank == 3 {
		sigmas[0] = sigmaZ
		sigmas[1] = sigmaYX
		sigmas[2] = sigmaYX
	} else {
		sigmas[0] = sigmaYX
		sigmas[1] = sigmaYX
	}

	table := &Table{axes: make([]axisTable, rank)}
	for axis := 0; axis < rank; axis++ {
		step := voxels[axis] / tableOversampling
		n := maxGrid*tableOversampling + 1
		values := make([]float64, n)
		for i := 0; i < n; i++ {
			values[i] = integratedFactor(float64(i)*step, sigmas[axis], voxels[axis])
		}
		table.axes[axis] = axisTable{step: step, values: values}
	}
	return table, nil
}

// AddGaussian accumulates into dst a Gaussian centered at the given
// physical position, evaluated on the grid through the lookup table, with
// the given amplitude and a background floor added to every sample.
func (t *Table) AddGaussian(dst []float64, grid [][]float64, center []float64, amplitude, background float64) {
	for i := range dst {
		v := amplitude
		for axis := range t.axes {
			d := math.Abs(grid[axis][i] - center[axis])
			v *= t.axes[axis].lookup(d)
		}
		dst[i] += v + background
	}
}

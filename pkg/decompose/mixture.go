package decompose

import (
	"gonum.org/v1/gonum/floats"

	"spotdecomp/pkg/psf"
	"spotdecomp/pkg/volume"
)

// mixtureFit is the outcome of decomposing one candidate region.
type mixtureFit struct {
	// positions are the fitted spot positions in physical units, local to
	// the region patch, one tuple per placed Gaussian, in placement order.
	positions [][]float64

	// simulation is the best simulated patch, clipped and rounded to the
	// valid range of the source image kind. Diagnostics only.
	simulation *volume.Image

	// capped reports that the fit stopped at the placement limit instead
	// of converging.
	capped bool
}

// fitGaussianMixture explains a region patch as a sum of Gaussian PSF
// responses placed greedily: each step puts a Gaussian at the largest
// residual sample (row-major first occurrence on ties) and is kept only if
// it strictly reduces the sum of squared residuals. The background floor is
// applied with the first placement only. The loop stops at the first
// non-improving placement, which is discarded unless it is the only one, or
// at the placement limit, in which case every placement is kept and the fit
// is reported as capped. The same code serves rank 2 and rank 3 patches.
func fitGaussianMixture(patch *volume.Image, geom psf.Geometry, params psf.Parameters, table *psf.Table, limit int) mixtureFit {
	raw := make([]float64, patch.Size())
	copy(raw, patch.Data)

	grid := psf.Grid(patch.Shape, geom.VoxelSizes(patch.Rank()))

	simulation := make([]float64, len(raw))
	best := make([]float64, len(raw))
	residual := make([]float64, len(raw))
	copy(residual, raw)
	ssr := floats.Dot(residual, residual)

	background := params.Background
	var positions [][]float64
	capped := false

	for {
		peak := floats.MaxIdx(residual)
		center := make([]float64, table.Rank())
		for axis := range center {
			center[axis] = grid[axis][peak]
		}
		positions = append(positions, center)

		table.AddGaussian(simulation, grid, center, params.Amplitude, background)
		// the background floor is added once, with the first gaussian
		background = 0

		for i := range residual {
			residual[i] = raw[i] - simulation[i]
		}
		newSSR := floats.Dot(residual, residual)
		improved := newSSR-ssr < 0
		ssr = newSSR

		if improved {
			copy(best, simulation)
			if len(positions) == limit {
				capped = true
				break
			}
			continue
		}
		// discard the non-improving placement, but a region always keeps
		// at least one fitted spot
		if len(positions) > 1 {
			positions = positions[:len(positions)-1]
		}
		break
	}

	bestImage := &volume.Image{
		Data:  volume.ClipToKind(best, patch.Kind),
		Shape: append([]int(nil), patch.Shape...),
		Kind:  patch.Kind,
	}
	return mixtureFit{positions: positions, simulation: bestImage, capped: capped}
}

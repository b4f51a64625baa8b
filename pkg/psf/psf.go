// Package psf models the point spread function of a fluorescent spot. It
// builds a reference spot by aggregating detected spot neighborhoods, fits
// a pixel-integrated Gaussian model to it, and precomputes an error
// function lookup table so that Gaussians can be evaluated on large grids
// without transcendental calls.
package psf

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"spotdecomp/pkg/volume"
)

// ReferenceSpotSize is the side length, in pixels, of the reference spot
// patch along every axis.
const ReferenceSpotSize = 5

// Geometry describes the physical sampling and optics of an acquisition.
// All values are in nanometers. The z entries are zero for 2-d images.
type Geometry struct {
	// VoxelZ is the physical height of one voxel along the z axis.
	VoxelZ float64

	// VoxelYX is the physical size of one pixel in the yx plane.
	VoxelYX float64

	// PSFZ is the theoretical spread of the point spread function along z.
	PSFZ float64

	// PSFYX is the theoretical spread of the point spread function in the
	// yx plane.
	PSFYX float64
}

// Validate checks that the geometry is complete for an image of the given
// rank: yx values must always be positive, z values must be positive for
// rank 3 images.
func (g Geometry) Validate(rank int) error {
	if g.VoxelYX <= 0 {
		return fmt.Errorf("voxel size yx must be positive, got %f", g.VoxelYX)
	}
	if g.PSFYX <= 0 {
		return fmt.Errorf("psf size yx must be positive, got %f", g.PSFYX)
	}
	if rank == 3 {
		if g.VoxelZ <= 0 {
			return fmt.Errorf("image has 3 dimensions but voxel size z is missing")
		}
		if g.PSFZ <= 0 {
			return fmt.Errorf("image has 3 dimensions but psf size z is missing")
		}
	}
	return nil
}

// Sigmas returns the expected standard deviation of a spot in pixel units,
// one value per axis (z first for rank 3): psf spread divided by voxel
// size.
func (g Geometry) Sigmas(rank int) []float64 {
	if rank == 3 {
		return []float64{g.PSFZ / g.VoxelZ, g.PSFYX / g.VoxelYX, g.PSFYX / g.VoxelYX}
	}
	return []float64{g.PSFYX / g.VoxelYX, g.PSFYX / g.VoxelYX}
}

// VoxelSizes returns the physical size of one voxel per axis, z first for
// rank 3.
func (g Geometry) VoxelSizes(rank int) []float64 {
	if rank == 3 {
		return []float64{g.VoxelZ, g.VoxelYX, g.VoxelYX}
	}
	return []float64{g.VoxelYX, g.VoxelYX}
}

// BuildReferenceSpot aggregates the pixel neighborhoods of all spots into a
// single patch of side ReferenceSpotSize. For every patch pixel the value is
// the alpha quantile across the contributing spot neighborhoods: alpha 0
// selects the dimmest aggregate, 0.5 the median, 1 the brightest. Spots
// whose neighborhood crosses the image border do not contribute. When no
// spot contributes the returned patch is entirely zero.
func BuildReferenceSpot(img *volume.Image, spots [][]int, geom Geometry, alpha float64) (*volume.Image, error) {
	rank := img.Rank()
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("alpha should be a value between 0 and 1, not %f", alpha)
	}
	if err := geom.Validate(rank); err != nil {
		return nil, err
	}

	shape := make([]int, rank)
	for i := range shape {
		shape[i] = ReferenceSpotSize
	}
	reference, err := volume.New(img.Kind, shape...)
	if err != nil {
		return nil, err
	}

	radius := ReferenceSpotSize / 2
	min := make([]int, rank)
	max := make([]int, rank)
	var patches []*volume.Image
	for _, spot := range spots {
		if len(spot) != rank {
			return nil, fmt.Errorf("spot %v has %d coordinates for a rank %d image", spot, len(spot), rank)
		}
		inBounds := true
		for axis := 0; axis < rank; axis++ {
			min[axis] = spot[axis] - radius
			max[axis] = spot[axis] + radius + 1
			if min[axis] < 0 || max[axis] > img.Shape[axis] {
				inBounds = false
				break
			}
		}
		if !inBounds {
			continue
		}
		patch, err := img.Patch(min, max)
		if err != nil {
			return nil, err
		}
		patches = append(patches, patch)
	}
	if len(patches) == 0 {
		return reference, nil
	}

	// per-pixel quantile across all contributing neighborhoods
	values := make([]float64, len(patches))
	for i := range reference.Data {
		for j, patch := range patches {
			values[j] = patch.Data[i]
		}
		sort.Float64s(values)
		reference.Data[i] = stat.Quantile(alpha, stat.LinInterp, values, nil)
	}
	return reference, nil
}

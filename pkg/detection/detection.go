// Package detection finds individual fluorescent spots in 2-d and 3-d
// images with a Laplacian-of-Gaussian filter followed by local-maximum
// suppression and intensity thresholding.
package detection

import (
	"fmt"
	"math"

	"spotdecomp/pkg/filter"
	"spotdecomp/pkg/psf"
	"spotdecomp/pkg/volume"
)

// Options controls the spot detector.
type Options struct {
	// MinDistance is the minimum spacing, in pixels, between two detected
	// peaks. The local-maximum window has size 2*MinDistance+1.
	MinDistance int

	// Threshold removes peaks whose original intensity does not strictly
	// exceed it.
	Threshold float64

	// RelativeThreshold interprets Threshold as a fraction of the image
	// maximum instead of an absolute intensity.
	RelativeThreshold bool
}

// Result holds detected spot coordinates and the expected spot radius.
type Result struct {
	// Spots are the peak coordinates, one integer tuple per spot, in the
	// image axis order.
	Spots [][]int

	// Radius is the expected spot radius in pixels, sqrt(rank) times the
	// yx sigma.
	Radius float64
}

// DetectSpots runs the LoG local-maximum pipeline. The image is smoothed
// with the per-axis sigmas derived from the geometry, pixels equal to their
// windowed maximum are candidate peaks, and peaks below the threshold are
// dropped.
func DetectSpots(img *volume.Image, geom psf.Geometry, opts Options) (*Result, error) {
	rank := img.Rank()
	if err := geom.Validate(rank); err != nil {
		return nil, err
	}
	if opts.MinDistance < 1 {
		return nil, fmt.Errorf("minimum distance must be at least 1, got %d", opts.MinDistance)
	}

	sigmas := geom.Sigmas(rank)
	filtered, err := filter.LoGFilter(img, sigmas)
	if err != nil {
		return nil, fmt.Errorf("log filter failed: %v", err)
	}

	maxFiltered, err := filter.MaximumFilter(filtered, 2*opts.MinDistance+1)
	if err != nil {
		return nil, fmt.Errorf("maximum filter failed: %v", err)
	}

	threshold := opts.Threshold
	if opts.RelativeThreshold {
		threshold *= img.Max()
	}

	var spots [][]int
	coord := make([]int, rank)
	for i := range filtered.Data {
		// a local maximum keeps its value through the maximum filter
		if filtered.Data[i] > 0 &&
			filtered.Data[i] == maxFiltered.Data[i] &&
			img.Data[i] > threshold {
			spots = append(spots, append([]int(nil), coord...))
		}
		for axis := rank - 1; axis >= 0; axis-- {
			coord[axis]++
			if coord[axis] < img.Shape[axis] {
				break
			}
			coord[axis] = 0
		}
	}

	return &Result{
		Spots:  spots,
		Radius: math.Sqrt(float64(rank)) * sigmas[rank-1],
	}, nil
}

package decompose

import (
	"fmt"

	"spotdecomp/pkg/psf"
	"spotdecomp/pkg/volume"
)

// Region is a candidate dense region: a connected set of at least two
// pixels above the detection threshold, described by its half-open
// bounding box, its pixel count and its mean intensity over the component
// pixels.
type Region struct {
	// ID is the position of the region in the filtered candidate list.
	ID int

	// Min and Max delimit the axis-aligned bounding box, Max exclusive.
	Min, Max []int

	// Area is the number of pixels in the connected component.
	Area int

	// MeanIntensity is the average intensity of the component pixels.
	MeanIntensity float64
}

// DetectDenseRegions finds the candidate dense regions of the image and
// partitions the spot list into spots lying inside some candidate bounding
// box and spots outside all of them. The threshold is int(max * beta) over
// the median reference spot built from the given spots. The returned
// maxExtent is the largest bounding box side across all kept regions, used
// to size the Gaussian lookup table. An empty region list means there is
// nothing to decompose.
func DetectDenseRegions(img *volume.Image, spots [][]int, geom psf.Geometry, beta float64) (regions []Region, outside [][]int, maxExtent int, err error) {
	if beta < 0 {
		return nil, nil, 0, fmt.Errorf("beta should be a positive value, not %f", beta)
	}

	// threshold from the median reference spot, independent of the alpha
	// the caller picked for the main reference spot
	median, err := psf.BuildReferenceSpot(img, spots, geom, 0.5)
	if err != nil {
		return nil, nil, 0, err
	}
	threshold := float64(int(median.Max() * beta))

	labels, count := labelComponents(img, threshold)
	regions = measureComponents(img, labels, count)

	// keep regions with at least 2 pixels, re-indexed in label order
	kept := regions[:0]
	for _, region := range regions {
		if region.Area >= 2 {
			region.ID = len(kept)
			kept = append(kept, region)
		}
	}
	regions = kept

	if len(regions) == 0 {
		return nil, spots, 0, nil
	}

	outside, maxExtent = partitionSpots(regions, spots)
	return regions, outside, maxExtent, nil
}

// labelComponents labels the connected components of the mask image >
// threshold (strict), using full connectivity including diagonals. Labels
// are assigned in ascending order of the first component pixel met in a
// row-major scan, starting at 1. The returned slice holds one label per
// sample, 0 for background.
func labelComponents(img *volume.Image, threshold float64) ([]int, int) {
	rank := img.Rank()
	labels := make([]int, img.Size())
	offsets := neighborOffsets(rank)

	count := 0
	coord := make([]int, rank)
	neighbor := make([]int, rank)
	stack := make([][]int, 0, 64)

	scan := make([]int, rank)
	for i := 0; i < img.Size(); i++ {
		if labels[i] == 0 && img.Data[i] > threshold {
			count++
			labels[i] = count
			stack = append(stack[:0], append([]int(nil), scan...))
			for len(stack) > 0 {
				copy(coord, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
				for _, offset := range offsets {
					inside := true
					for axis := 0; axis < rank; axis++ {
						neighbor[axis] = coord[axis] + offset[axis]
						if neighbor[axis] < 0 || neighbor[axis] >= img.Shape[axis] {
							inside = false
							break
						}
					}
					if !inside {
						continue
					}
					j := img.Index(neighbor...)
					if labels[j] == 0 && img.Data[j] > threshold {
						labels[j] = count
						stack = append(stack, append([]int(nil), neighbor...))
					}
				}
			}
		}
		for axis := rank - 1; axis >= 0; axis-- {
			scan[axis]++
			if scan[axis] < img.Shape[axis] {
				break
			}
			scan[axis] = 0
		}
	}
	return labels, count
}

// neighborOffsets enumerates every offset of the full-connectivity
// neighborhood (all 3^rank-1 neighbors, diagonals included).
func neighborOffsets(rank int) [][]int {
	var offsets [][]int
	offset := make([]int, rank)
	for i := range offset {
		offset[i] = -1
	}
	for {
		zero := true
		for _, d := range offset {
			if d != 0 {
				zero = false
				break
			}
		}
		if !zero {
			offsets = append(offsets, append([]int(nil), offset...))
		}
		axis := rank - 1
		for axis >= 0 {
			offset[axis]++
			if offset[axis] <= 1 {
				break
			}
			offset[axis] = -1
			axis--
		}
		if axis < 0 {
			return offsets
		}
	}
}

// measureComponents computes area, bounding box and mean intensity for
// every labeled component, ordered by label.
func measureComponents(img *volume.Image, labels []int, count int) []Region {
	if count == 0 {
		return nil
	}
	rank := img.Rank()
	regions := make([]Region, count)
	for i := range regions {
		regions[i].Min = make([]int, rank)
		regions[i].Max = make([]int, rank)
		for axis := 0; axis < rank; axis++ {
			regions[i].Min[axis] = img.Shape[axis]
		}
	}
	sums := make([]float64, count)

	coord := make([]int, rank)
	for i, label := range labels {
		if label > 0 {
			region := &regions[label-1]
			region.Area++
			sums[label-1] += img.Data[i]
			for axis := 0; axis < rank; axis++ {
				if coord[axis] < region.Min[axis] {
					region.Min[axis] = coord[axis]
				}
				if coord[axis]+1 > region.Max[axis] {
					region.Max[axis] = coord[axis] + 1
				}
			}
		}
		for axis := rank - 1; axis >= 0; axis-- {
			coord[axis]++
			if coord[axis] < img.Shape[axis] {
				break
			}
			coord[axis] = 0
		}
	}
	for i := range regions {
		regions[i].MeanIntensity = sums[i] / float64(regions[i].Area)
	}
	return regions
}

// partitionSpots returns the spots lying outside every region bounding box
// and the largest bounding box extent across all regions. A spot inside a
// box on every axis simultaneously (min inclusive, max exclusive) is
// excluded from the outside list; one match suffices.
func partitionSpots(regions []Region, spots [][]int) (outside [][]int, maxExtent int) {
	inside := make([]bool, len(spots))
	for _, region := range regions {
		for axis := range region.Min {
			if extent := region.Max[axis] - region.Min[axis]; extent > maxExtent {
				maxExtent = extent
			}
		}
		for s, spot := range spots {
			if inside[s] {
				continue
			}
			in := true
			for axis := range spot {
				if spot[axis] < region.Min[axis] || spot[axis] >= region.Max[axis] {
					in = false
					break
				}
			}
			if in {
				inside[s] = true
			}
		}
	}
	outside = make([][]int, 0, len(spots))
	for s, spot := range spots {
		if !inside[s] {
			outside = append(outside, spot)
		}
	}
	return outside, maxExtent
}

// Package decompose detects dense, bright regions where fluorescent spots
// overlap too tightly to be resolved individually, and estimates how many
// spots each region actually holds by greedily fitting Gaussian point
// spread function responses until the observed intensities are explained.
package decompose

import (
	"fmt"
	"runtime"

	"spotdecomp/pkg/filter"
	"spotdecomp/pkg/psf"
	"spotdecomp/pkg/volume"
)

// DefaultLimit bounds the number of Gaussians fitted into a single region.
const DefaultLimit = 1000

// Options holds the tuning parameters of a decomposition run.
type Options struct {
	// Alpha is the intensity percentile used to build the reference spot,
	// between 0 and 1. The higher, the brighter the simulated spots, and
	// the fewer of them are placed in dense regions.
	Alpha float64

	// Beta is the multiplicative factor applied to the maximum of the
	// median reference spot to obtain the dense region threshold.
	Beta float64

	// Gamma scales the background estimation blur: the image is denoised
	// by subtracting a Gaussian blur of sigma gamma times the expected
	// spot sigma. Zero disables denoising.
	Gamma float64

	// Limit caps the number of Gaussians fitted per region. Zero selects
	// DefaultLimit.
	Limit int

	// Workers bounds the number of regions fitted concurrently. Zero
	// selects the number of CPUs.
	Workers int
}

// DefaultOptions returns the parameter values used by the original
// pipeline: median reference spot, threshold at the reference maximum, and
// a background blur five times the spot scale.
func DefaultOptions() Options {
	return Options{Alpha: 0.5, Beta: 1, Gamma: 5, Limit: DefaultLimit}
}

// RegionRecord summarizes one decomposed dense region.
type RegionRecord struct {
	// Centroid is the recorded region position, one coordinate per axis in
	// global pixel units. It is the first fitted spot of the region, not
	// an average of all fitted spots; kept that way for compatibility with
	// the original pipeline output.
	Centroid []float64

	// SpotCount is the number of Gaussians fitted into the region.
	SpotCount int

	// Area is the pixel count of the connected component.
	Area int

	// MeanIntensity is the average intensity of the component pixels.
	MeanIntensity float64

	// ID is the region index in the candidate list.
	ID int
}

// Result is the outcome of a decomposition run.
type Result struct {
	// Spots is the final spot list: the input spots that were outside
	// every dense region first, then the fitted spots of each region in
	// region order, each region's spots in placement order.
	Spots [][]int

	// Regions holds one summary record per decomposed region.
	Regions []RegionRecord

	// ReferenceSpot is the aggregated reference spot patch used to model
	// the point spread function.
	ReferenceSpot *volume.Image

	// Warnings collects the non-fatal anomalies met during the run.
	Warnings []string
}

// DecomposeDense runs the full dense region decomposition pipeline:
//
//  1. The image background is estimated with a large Gaussian blur and
//     removed (gamma).
//  2. A reference spot is built by aggregating the detected spots (alpha).
//  3. Gaussian parameters are fitted on the reference spot.
//  4. Dense candidate regions are detected (beta).
//  5. As many Gaussians as needed are simulated in each candidate region.
//
// Degenerate inputs (no spots, an empty reference spot, no candidate
// regions) return the original spots unchanged with an empty region list.
// Non-fatal anomalies are reported through Result.Warnings.
func DecomposeDense(img *volume.Image, spots [][]int, geom psf.Geometry, opts Options) (*Result, error) {
	rank := img.Rank()
	if opts.Alpha < 0 || opts.Alpha > 1 {
		return nil, fmt.Errorf("alpha should be a value between 0 and 1, not %f", opts.Alpha)
	}
	if opts.Beta < 0 {
		return nil, fmt.Errorf("beta should be a positive value, not %f", opts.Beta)
	}
	if opts.Gamma < 0 {
		return nil, fmt.Errorf("gamma should be a positive value, not %f", opts.Gamma)
	}
	if err := geom.Validate(rank); err != nil {
		return nil, err
	}
	for _, spot := range spots {
		if len(spot) != rank {
			return nil, fmt.Errorf("image has %d dimensions but spots are detected in %d dimensions",
				rank, len(spot))
		}
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Limit < 1 {
		return nil, fmt.Errorf("gaussian limit must be at least 1, got %d", opts.Limit)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	// case where no spot was detected
	if len(spots) == 0 {
		reference, err := zeroReference(img)
		if err != nil {
			return nil, err
		}
		return &Result{Spots: spots, ReferenceSpot: reference}, nil
	}

	// denoise the image with a large gaussian blur
	denoised := img
	if opts.Gamma > 0 {
		sigmas := geom.Sigmas(rank)
		large := make([]float64, rank)
		for axis, s := range sigmas {
			large[axis] = s * opts.Gamma
		}
		var err error
		denoised, err = filter.RemoveBackground(img, large)
		if err != nil {
			return nil, fmt.Errorf("background removal failed: %v", err)
		}
	}

	// build the reference spot and fit the gaussian model on it
	reference, err := psf.BuildReferenceSpot(denoised, spots, geom, opts.Alpha)
	if err != nil {
		return nil, err
	}
	if reference.Sum() == 0 {
		return &Result{Spots: spots, ReferenceSpot: reference}, nil
	}

	params, err := psf.FitSpotModel(reference, geom)
	if err != nil {
		return nil, err
	}
	if params.Background < 0 {
		return nil, fmt.Errorf("background value can't be negative: %f", params.Background)
	}

	// detect dense and bright candidate regions
	regions, outside, maxExtent, err := DetectDenseRegions(denoised, spots, geom, opts.Beta)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return &Result{Spots: spots, ReferenceSpot: reference}, nil
	}

	// precompute the gaussian lookup table once for all regions
	maxGrid := 200
	if maxExtent+1 > maxGrid {
		maxGrid = maxExtent + 1
	}
	table, err := psf.PrecomputeGaussianTable(geom, params.SigmaZ, params.SigmaYX, maxGrid)
	if err != nil {
		return nil, err
	}

	fits, err := fitRegions(denoised, regions, geom, params, table, opts)
	if err != nil {
		return nil, err
	}

	result := reconcile(regions, fits, outside, geom, rank)
	result.ReferenceSpot = reference

	// normally the number of detected spots should increase
	if len(result.Spots) < len(spots) {
		result.Warnings = append(result.Warnings,
			"problem occurred during the decomposition of dense regions: "+
				"less spots are detected after the decomposition than before")
	}
	return result, nil
}

// zeroReference builds the all-zero reference spot returned on degenerate
// inputs.
func zeroReference(img *volume.Image) (*volume.Image, error) {
	shape := make([]int, img.Rank())
	for i := range shape {
		shape[i] = psf.ReferenceSpotSize
	}
	return volume.New(img.Kind, shape...)
}

// fitRegions decomposes every candidate region, fanning the independent
// per-region fits out to a bounded pool of workers. The shared lookup table
// and the denoised image are read-only; results land in a slice indexed by
// region id, so output order stays deterministic.
func fitRegions(img *volume.Image, regions []Region, geom psf.Geometry, params psf.Parameters, table *psf.Table, opts Options) ([]mixtureFit, error) {
	type regionResult struct {
		id  int
		fit mixtureFit
		err error
	}
	resultChan := make(chan regionResult)
	semaphore := make(chan struct{}, opts.Workers)

	for _, region := range regions {
		go func(region Region) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			patch, err := img.Patch(region.Min, region.Max)
			if err != nil {
				resultChan <- regionResult{id: region.ID, err: err}
				return
			}
			fit := fitGaussianMixture(patch, geom, params, table, opts.Limit)
			resultChan <- regionResult{id: region.ID, fit: fit}
		}(region)
	}

	fits := make([]mixtureFit, len(regions))
	var firstErr error
	for range regions {
		res := <-resultChan
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("region %d decomposition failed: %v", res.id, res.err)
			}
			continue
		}
		fits[res.id] = res.fit
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return fits, nil
}

// reconcile maps the region-local fitted positions back into global pixel
// coordinates, assembles the per-region summary records and merges the
// fitted spots with the spots that were outside every dense region.
func reconcile(regions []Region, fits []mixtureFit, outside [][]int, geom psf.Geometry, rank int) *Result {
	voxels := geom.VoxelSizes(rank)
	result := &Result{
		Spots:   append([][]int(nil), outside...),
		Regions: make([]RegionRecord, 0, len(regions)),
	}

	for _, region := range regions {
		fit := fits[region.ID]
		if fit.capped {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"decomposition of region %d stopped early at the limit of %d gaussians; "+
					"set a higher limit or check for an artifact in the image",
				region.ID, len(fit.positions)))
		}

		var centroid []float64
		for p, position := range fit.positions {
			global := make([]float64, rank)
			pixel := make([]int, rank)
			for axis := 0; axis < rank; axis++ {
				global[axis] = position[axis]/voxels[axis] + float64(region.Min[axis])
				pixel[axis] = int(global[axis])
			}
			if p == 0 {
				centroid = global
			}
			result.Spots = append(result.Spots, pixel)
		}

		result.Regions = append(result.Regions, RegionRecord{
			Centroid:      centroid,
			SpotCount:     len(fit.positions),
			Area:          region.Area,
			MeanIntensity: region.MeanIntensity,
			ID:            region.ID,
		})
	}
	return result
}

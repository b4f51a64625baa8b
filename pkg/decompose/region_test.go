package decompose

import (
	"testing"

	"spotdecomp/pkg/psf"
	"spotdecomp/pkg/volume"
)

// testGeometry returns a typical 2-d widefield acquisition geometry
func testGeometry() psf.Geometry {
	return psf.Geometry{VoxelYX: 100, PSFYX: 200}
}

// brightPairImage builds the canonical dense scenario: a 12x12 image of
// zeros with two adjacent pixels at 5000. The returned spots put one spot
// on the pair and one on empty background, so the median reference spot
// tops out at 2500 and the pair sits above the dense threshold at beta=1.
func brightPairImage(t *testing.T) (*volume.Image, [][]int) {
	t.Helper()
	img, err := volume.New(volume.Uint16, 12, 12)
	if err != nil {
		t.Fatalf("Failed to create image: %v", err)
	}
	img.Set(5000, 4, 4)
	img.Set(5000, 4, 5)
	return img, [][]int{{4, 4}, {8, 8}}
}

// TestDetectDenseRegionsBrightPair verifies that two adjacent bright
// pixels form exactly one candidate region of area 2
func TestDetectDenseRegionsBrightPair(t *testing.T) {
	img, spots := brightPairImage(t)

	regions, outside, maxExtent, err := DetectDenseRegions(img, spots, testGeometry(), 1)
	if err != nil {
		t.Fatalf("Detection failed: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("Expected exactly 1 candidate region, got %d", len(regions))
	}

	region := regions[0]
	if region.Area != 2 {
		t.Errorf("Expected area 2, got %d", region.Area)
	}
	if region.Min[0] != 4 || region.Min[1] != 4 || region.Max[0] != 5 || region.Max[1] != 6 {
		t.Errorf("Unexpected bounding box [%v, %v)", region.Min, region.Max)
	}
	if region.MeanIntensity != 5000 {
		t.Errorf("Expected mean intensity 5000 over the component, got %f", region.MeanIntensity)
	}
	if maxExtent != 2 {
		t.Errorf("Expected max extent 2, got %d", maxExtent)
	}

	// the spot on the pair is inside, the background spot is outside
	if len(outside) != 1 || outside[0][0] != 8 || outside[0][1] != 8 {
		t.Errorf("Expected only the background spot outside, got %v", outside)
	}
}

// TestDetectDenseRegionsBetaMonotonic verifies that increasing beta never
// increases the number of candidate regions
func TestDetectDenseRegionsBetaMonotonic(t *testing.T) {
	img, _ := volume.New(volume.Uint16, 16, 16)
	// three separated pairs of decreasing brightness
	for i, v := range []float64{4000, 2000, 800} {
		y := 2 + 5*i
		img.Set(v, y, 2)
		img.Set(v, y, 3)
	}
	spots := [][]int{{2, 2}, {12, 12}}

	previous := -1
	for _, beta := range []float64{0, 0.5, 1, 1.5, 3} {
		regions, _, _, err := DetectDenseRegions(img, spots, testGeometry(), beta)
		if err != nil {
			t.Fatalf("beta=%f: %v", beta, err)
		}
		if previous >= 0 && len(regions) > previous {
			t.Errorf("beta=%f: region count %d grew from %d", beta, len(regions), previous)
		}
		previous = len(regions)
	}
}

// TestDetectDenseRegionsRejectsNegativeBeta verifies parameter validation
func TestDetectDenseRegionsRejectsNegativeBeta(t *testing.T) {
	img, spots := brightPairImage(t)
	if _, _, _, err := DetectDenseRegions(img, spots, testGeometry(), -1); err == nil {
		t.Error("Expected an error for negative beta")
	}
}

// TestLabelComponentsDiagonal verifies full connectivity: diagonally
// touching pixels belong to one component
func TestLabelComponentsDiagonal(t *testing.T) {
	img, _ := volume.New(volume.Uint16, 6, 6)
	img.Set(10, 2, 2)
	img.Set(10, 3, 3)

	labels, count := labelComponents(img, 0)
	if count != 1 {
		t.Fatalf("Diagonal neighbors should form one component, got %d", count)
	}
	if labels[img.Index(2, 2)] != 1 || labels[img.Index(3, 3)] != 1 {
		t.Errorf("Both pixels should carry label 1")
	}
}

// TestLabelComponentsScanOrder verifies that labels follow the row-major
// first-encounter order
func TestLabelComponentsScanOrder(t *testing.T) {
	img, _ := volume.New(volume.Uint16, 8, 8)
	// component B starts on a later row than component A
	img.Set(10, 1, 6)
	img.Set(10, 1, 7)
	img.Set(10, 5, 0)
	img.Set(10, 5, 1)

	labels, count := labelComponents(img, 0)
	if count != 2 {
		t.Fatalf("Expected 2 components, got %d", count)
	}
	if labels[img.Index(1, 6)] != 1 {
		t.Errorf("The first component met in scan order should carry label 1, got %d",
			labels[img.Index(1, 6)])
	}
	if labels[img.Index(5, 0)] != 2 {
		t.Errorf("The second component met in scan order should carry label 2, got %d",
			labels[img.Index(5, 0)])
	}
}

// TestLabelComponentsStrictThreshold verifies that pixels equal to the
// threshold stay background
func TestLabelComponentsStrictThreshold(t *testing.T) {
	img, _ := volume.New(volume.Uint16, 4, 4)
	img.Set(100, 1, 1)
	img.Set(100, 1, 2)

	_, count := labelComponents(img, 100)
	if count != 0 {
		t.Errorf("Mask must be strictly greater than the threshold, got %d components", count)
	}
}

// TestDetectDenseRegionsDiscardsSingletons verifies the minimum area filter
func TestDetectDenseRegionsDiscardsSingletons(t *testing.T) {
	img, _ := volume.New(volume.Uint16, 12, 12)
	img.Set(5000, 4, 4) // isolated bright pixel
	spots := [][]int{{4, 4}, {8, 8}}

	regions, outside, _, err := DetectDenseRegions(img, spots, testGeometry(), 1)
	if err != nil {
		t.Fatalf("Detection failed: %v", err)
	}
	if len(regions) != 0 {
		t.Errorf("A single-pixel component should be discarded, got %d regions", len(regions))
	}
	if len(outside) != len(spots) {
		t.Errorf("With no kept region every spot is outside, got %d of %d", len(outside), len(spots))
	}
}

// TestPartitionSpots verifies inclusive-min, exclusive-max membership and
// single counting across overlapping matches
func TestPartitionSpots(t *testing.T) {
	regions := []Region{
		{ID: 0, Min: []int{2, 2}, Max: []int{5, 6}},
		{ID: 1, Min: []int{8, 8}, Max: []int{10, 10}},
	}
	spots := [][]int{
		{2, 2},  // on min corner: inside
		{4, 5},  // interior of region 0
		{5, 5},  // on max row bound: outside
		{8, 9},  // inside region 1
		{11, 3}, // outside everything
	}

	outside, maxExtent := partitionSpots(regions, spots)
	if len(outside) != 2 {
		t.Fatalf("Expected 2 outside spots, got %d: %v", len(outside), outside)
	}
	if outside[0][0] != 5 || outside[1][0] != 11 {
		t.Errorf("Unexpected outside spots %v", outside)
	}
	// region 0 spans 3x4, region 1 spans 2x2
	if maxExtent != 4 {
		t.Errorf("Expected max extent 4, got %d", maxExtent)
	}
}

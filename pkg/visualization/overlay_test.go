package visualization

import (
	"os"
	"path/filepath"
	"testing"

	"spotdecomp/pkg/decompose"
	"spotdecomp/pkg/volume"
)

// TestOverlayMarkers verifies the base layer, the region box and the spot
// marker colors
func TestOverlayMarkers(t *testing.T) {
	img, _ := volume.New(volume.Uint16, 10, 10)
	img.Set(1000, 8, 1)

	regions := []decompose.Region{{ID: 0, Min: []int{2, 3}, Max: []int{5, 7}}}
	spots := [][]int{{8, 1}}

	out, err := Overlay(img, regions, spots)
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
	bounds := out.Bounds()
	if bounds.Dx() != 10 || bounds.Dy() != 10 {
		t.Fatalf("Expected a 10x10 overlay, got %v", bounds)
	}

	// box corner at image (y=2, x=3)
	if out.RGBAAt(3, 2) != regionColor {
		t.Errorf("Expected the region color at the box corner, got %v", out.RGBAAt(3, 2))
	}
	// last row of the half-open box is y=4
	if out.RGBAAt(3, 4) != regionColor {
		t.Errorf("Expected the region color on the bottom edge, got %v", out.RGBAAt(3, 4))
	}
	if out.RGBAAt(1, 8) != spotColor {
		t.Errorf("Expected the spot color at the marker center, got %v", out.RGBAAt(1, 8))
	}
	// interior of the box stays grayscale
	c := out.RGBAAt(5, 3)
	if c.R != c.G || c.G != c.B {
		t.Errorf("Expected a grayscale interior, got %v", c)
	}
}

// TestOverlayProjection verifies that 3-d images are max-projected along z
func TestOverlayProjection(t *testing.T) {
	img, _ := volume.New(volume.Uint16, 3, 6, 6)
	img.Set(500, 1, 2, 4)

	out, err := Overlay(img, nil, nil)
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
	// the brightest voxel projects to full white at (y=2, x=4)
	if c := out.RGBAAt(4, 2); c.R != 255 {
		t.Errorf("Expected the projected peak at full intensity, got %v", c)
	}
	if c := out.RGBAAt(0, 0); c.R != 0 {
		t.Errorf("Expected a black background, got %v", c)
	}
}

// TestOverlayRejectsShortSpots verifies the coordinate check
func TestOverlayRejectsShortSpots(t *testing.T) {
	img, _ := volume.New(volume.Uint16, 6, 6)
	if _, err := Overlay(img, nil, [][]int{{3}}); err == nil {
		t.Error("Expected an error for a 1-coordinate spot")
	}
}

// TestSaveOverlay verifies the PNG file output
func TestSaveOverlay(t *testing.T) {
	img, _ := volume.New(volume.Uint16, 6, 6)
	path := filepath.Join(t.TempDir(), "overlay.png")

	if err := SaveOverlay(path, img, nil, nil); err != nil {
		t.Fatalf("Failed to save overlay: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Overlay file was not created: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Overlay file is empty")
	}
}

// Package visualization renders detection and decomposition results onto a
// 2-d view of the image for visual inspection: a grayscale rendering of the
// (max-projected) intensities with candidate region boxes and spot markers.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"spotdecomp/pkg/decompose"
	"spotdecomp/pkg/volume"
)

var (
	regionColor = color.RGBA{R: 255, G: 64, B: 64, A: 255}
	spotColor   = color.RGBA{R: 64, G: 255, B: 64, A: 255}
)

// Overlay draws the image with region bounding boxes and spot markers. 3-d
// images are max-projected along z first; region boxes and spot positions
// then use their y and x coordinates only.
func Overlay(img *volume.Image, regions []decompose.Region, spots [][]int) (*image.RGBA, error) {
	projected := project(img)
	height := projected.Shape[0]
	width := projected.Shape[1]

	out := image.NewRGBA(image.Rect(0, 0, width, height))

	// grayscale base layer, scaled to the image maximum
	max := projected.Max()
	if max == 0 {
		max = 1
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(projected.At(y, x) / max * 255)
			out.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	yAxis := img.Rank() - 2
	for _, region := range regions {
		drawBox(out, region.Min[yAxis], region.Min[yAxis+1], region.Max[yAxis], region.Max[yAxis+1])
	}
	for _, spot := range spots {
		if len(spot) < 2 {
			return nil, fmt.Errorf("spot %v has fewer than 2 coordinates", spot)
		}
		drawMarker(out, spot[len(spot)-2], spot[len(spot)-1])
	}
	return out, nil
}

// SaveOverlay renders the overlay and writes it as a PNG file.
func SaveOverlay(path string, img *volume.Image, regions []decompose.Region, spots [][]int) error {
	overlay, err := Overlay(img, regions, spots)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return png.Encode(file, overlay)
}

// project collapses a 3-d image to 2-d by maximum projection along z, and
// returns 2-d images unchanged.
func project(img *volume.Image) *volume.Image {
	if img.Rank() == 2 {
		return img
	}
	depth := img.Shape[0]
	height := img.Shape[1]
	width := img.Shape[2]
	out := &volume.Image{
		Data:  make([]float64, height*width),
		Shape: []int{height, width},
		Kind:  img.Kind,
	}
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				if v := img.At(z, y, x); v > out.At(y, x) {
					out.Set(v, y, x)
				}
			}
		}
	}
	return out
}

// drawBox outlines the half-open box [minY, maxY) x [minX, maxX).
func drawBox(img *image.RGBA, minY, minX, maxY, maxX int) {
	for x := minX; x < maxX; x++ {
		setIfInside(img, x, minY, regionColor)
		setIfInside(img, x, maxY-1, regionColor)
	}
	for y := minY; y < maxY; y++ {
		setIfInside(img, minX, y, regionColor)
		setIfInside(img, maxX-1, y, regionColor)
	}
}

// drawMarker draws a small cross centered on a spot.
func drawMarker(img *image.RGBA, y, x int) {
	for d := -1; d <= 1; d++ {
		setIfInside(img, x+d, y, spotColor)
		setIfInside(img, x, y+d, spotColor)
	}
}

func setIfInside(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

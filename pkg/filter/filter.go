// Package filter implements the separable image filters used by the
// detection and decomposition pipeline: Gaussian smoothing, large-scale
// background removal, Laplacian-of-Gaussian enhancement and windowed
// maximum filtering. All filters work on 2-d and 3-d images.
package filter

import (
	"fmt"
	"math"

	"spotdecomp/pkg/volume"
)

// gaussianKernel1D builds a normalized 1-d Gaussian kernel truncated at
// 4 sigma on each side.
func gaussianKernel1D(sigma float64) []float64 {
	radius := int(math.Ceil(4 * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// reflectIndex mirrors an out-of-range index back into [0, n), matching the
// reflect boundary mode of standard n-d convolution implementations.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i = ((i % period) + period) % period
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// convolveAxis convolves the image along one axis with a 1-d kernel,
// reflecting at the boundaries. The result replaces img.Data.
func convolveAxis(img *volume.Image, axis int, kernel []float64) {
	radius := (len(kernel) - 1) / 2
	n := img.Shape[axis]

	// stride between consecutive samples along the axis
	stride := 1
	for a := axis + 1; a < img.Rank(); a++ {
		stride *= img.Shape[a]
	}

	out := make([]float64, len(img.Data))
	line := make([]float64, n)
	numLines := len(img.Data) / n

	for l := 0; l < numLines; l++ {
		// compute the base offset of the l-th line along this axis
		outer := l / stride
		inner := l % stride
		base := outer*stride*n + inner

		for i := 0; i < n; i++ {
			line[i] = img.Data[base+i*stride]
		}
		for i := 0; i < n; i++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				acc += kernel[k+radius] * line[reflectIndex(i+k, n)]
			}
			out[base+i*stride] = acc
		}
	}
	copy(img.Data, out)
}

// checkSigmas validates that one strictly positive sigma is supplied per
// image axis.
func checkSigmas(img *volume.Image, sigmas []float64) error {
	if len(sigmas) != img.Rank() {
		return fmt.Errorf("expected %d sigma values for a rank %d image, got %d",
			img.Rank(), img.Rank(), len(sigmas))
	}
	for axis, s := range sigmas {
		if s <= 0 {
			return fmt.Errorf("sigma for axis %d must be positive, got %f", axis, s)
		}
	}
	return nil
}

// GaussianBlur smooths the image with a separable Gaussian, one sigma per
// axis, and returns the smoothed copy. The input is left untouched.
func GaussianBlur(img *volume.Image, sigmas []float64) (*volume.Image, error) {
	if err := checkSigmas(img, sigmas); err != nil {
		return nil, err
	}
	out := img.Clone()
	for axis, sigma := range sigmas {
		convolveAxis(out, axis, gaussianKernel1D(sigma))
	}
	return out, nil
}

// RemoveBackground estimates the image background with a large Gaussian
// blur and subtracts it from the image. Pixels where the estimated
// background exceeds the signal are clamped to zero, so the result never
// goes negative.
func RemoveBackground(img *volume.Image, sigmas []float64) (*volume.Image, error) {
	background, err := GaussianBlur(img, sigmas)
	if err != nil {
		return nil, err
	}
	out := img.Clone()
	for i, v := range out.Data {
		d := v - background.Data[i]
		if d < 0 {
			d = 0
		}
		out.Data[i] = d
	}
	return out, nil
}

// LoGFilter applies a Laplacian-of-Gaussian filter: the image is smoothed
// with the given sigmas, the discrete Laplacian is taken, and the response
// is negated and clamped at zero so that bright blobs come out as positive
// peaks.
func LoGFilter(img *volume.Image, sigmas []float64) (*volume.Image, error) {
	smoothed, err := GaussianBlur(img, sigmas)
	if err != nil {
		return nil, err
	}
	out := smoothed.Clone()
	rank := img.Rank()
	coord := make([]int, rank)
	neighbor := make([]int, rank)
	for i := range out.Data {
		center := smoothed.Data[i]
		lap := 0.0
		for axis := 0; axis < rank; axis++ {
			copy(neighbor, coord)
			for _, d := range []int{-1, 1} {
				neighbor[axis] = reflectIndex(coord[axis]+d, img.Shape[axis])
				lap += smoothed.At(neighbor...) - center
			}
			neighbor[axis] = coord[axis]
		}
		// a bright blob has a negative Laplacian at its center
		if lap < 0 {
			out.Data[i] = -lap
		} else {
			out.Data[i] = 0
		}
		advance(coord, img.Shape)
	}
	return out, nil
}

// MaximumFilter replaces every sample by the maximum over a centered cubic
// window of the given size. Samples outside the image count as zero. The
// window size must be odd.
func MaximumFilter(img *volume.Image, size int) (*volume.Image, error) {
	if size < 1 || size%2 == 0 {
		return nil, fmt.Errorf("maximum filter size must be a positive odd number, got %d", size)
	}
	radius := size / 2
	out := img.Clone()
	rank := img.Rank()
	coord := make([]int, rank)
	window := make([]int, rank)
	for i := range out.Data {
		max := 0.0
		for j := range window {
			window[j] = -radius
		}
		for {
			inside := true
			for axis := 0; axis < rank; axis++ {
				c := coord[axis] + window[axis]
				if c < 0 || c >= img.Shape[axis] {
					inside = false
					break
				}
			}
			if inside {
				probe := make([]int, rank)
				for axis := 0; axis < rank; axis++ {
					probe[axis] = coord[axis] + window[axis]
				}
				if v := img.At(probe...); v > max {
					max = v
				}
			}
			if !advanceWindow(window, radius) {
				break
			}
		}
		out.Data[i] = max
		advance(coord, img.Shape)
	}
	return out, nil
}

// advance steps a row-major coordinate counter through the image shape.
func advance(coord, shape []int) {
	for axis := len(coord) - 1; axis >= 0; axis-- {
		coord[axis]++
		if coord[axis] < shape[axis] {
			return
		}
		coord[axis] = 0
	}
}

// advanceWindow steps a window offset counter over [-radius, radius] on
// every axis and reports whether more offsets remain.
func advanceWindow(window []int, radius int) bool {
	for axis := len(window) - 1; axis >= 0; axis-- {
		window[axis]++
		if window[axis] <= radius {
			return true
		}
		window[axis] = -radius
	}
	return false
}

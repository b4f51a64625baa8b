// Package volume provides the n-dimensional image array used across the
// detection and decomposition pipeline. Images are stored as row-major
// float64 samples with an element kind that records the valid value range
// of the original data, so that reconstructed patches can be clipped and
// cast back without wrapping.
package volume

import (
	"fmt"
	"math"
)

// Kind identifies the element type an image was acquired with.
type Kind int

const (
	// Uint8 covers 8-bit unsigned grayscale images.
	Uint8 Kind = iota

	// Uint16 covers 16-bit unsigned grayscale images, the most common
	// acquisition depth for fluorescence microscopy.
	Uint16

	// Float32 covers single precision floating point images.
	Float32

	// Float64 covers double precision floating point images.
	Float64
)

// String returns a human readable name for the kind.
func (k Kind) String() string {
	switch k {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MaxValue returns the largest value representable by the kind. Integer
// kinds saturate at their type maximum, floating point kinds at the
// corresponding IEEE maximum.
func (k Kind) MaxValue() float64 {
	switch k {
	case Uint8:
		return 255
	case Uint16:
		return 65535
	case Float32:
		return math.MaxFloat32
	default:
		return math.MaxFloat64
	}
}

// Image is a dense intensity array of rank 2 (y, x) or rank 3 (z, y, x).
// Samples are stored row-major, the last axis varying fastest.
type Image struct {
	// Data holds the intensity samples in row-major order.
	Data []float64

	// Shape holds the axis lengths, (y, x) or (z, y, x).
	Shape []int

	// Kind records the element type of the original data.
	Kind Kind
}

// New allocates a zero-valued image with the given kind and shape.
func New(kind Kind, shape ...int) (*Image, error) {
	if len(shape) != 2 && len(shape) != 3 {
		return nil, fmt.Errorf("image rank must be 2 or 3, got %d", len(shape))
	}
	size := 1
	for _, n := range shape {
		if n <= 0 {
			return nil, fmt.Errorf("image axes must be positive, got shape %v", shape)
		}
		size *= n
	}
	return &Image{
		Data:  make([]float64, size),
		Shape: append([]int(nil), shape...),
		Kind:  kind,
	}, nil
}

// Rank returns the number of axes.
func (img *Image) Rank() int {
	return len(img.Shape)
}

// Size returns the total number of samples.
func (img *Image) Size() int {
	return len(img.Data)
}

// Index converts a coordinate tuple to the row-major offset into Data.
// Coordinates are not bounds checked beyond length; the caller guarantees
// they lie inside the image.
func (img *Image) Index(coord ...int) int {
	idx := 0
	for axis, c := range coord {
		idx = idx*img.Shape[axis] + c
	}
	return idx
}

// At returns the sample at the given coordinates.
func (img *Image) At(coord ...int) float64 {
	return img.Data[img.Index(coord...)]
}

// Set stores a sample at the given coordinates.
func (img *Image) Set(value float64, coord ...int) {
	img.Data[img.Index(coord...)] = value
}

// Clone returns a deep copy of the image.
func (img *Image) Clone() *Image {
	out := &Image{
		Data:  make([]float64, len(img.Data)),
		Shape: append([]int(nil), img.Shape...),
		Kind:  img.Kind,
	}
	copy(out.Data, img.Data)
	return out
}

// Max returns the largest sample value. An empty image yields 0.
func (img *Image) Max() float64 {
	max := math.Inf(-1)
	for _, v := range img.Data {
		if v > max {
			max = v
		}
	}
	if math.IsInf(max, -1) {
		return 0
	}
	return max
}

// Sum returns the sum of all samples.
func (img *Image) Sum() float64 {
	sum := 0.0
	for _, v := range img.Data {
		sum += v
	}
	return sum
}

// Patch extracts the half-open box [min, max) as a new image with the same
// kind. min and max must have one entry per axis with min < max, and the box
// must lie inside the image.
func (img *Image) Patch(min, max []int) (*Image, error) {
	rank := img.Rank()
	if len(min) != rank || len(max) != rank {
		return nil, fmt.Errorf("patch bounds rank mismatch: image has %d axes, bounds have %d and %d",
			rank, len(min), len(max))
	}
	shape := make([]int, rank)
	for axis := 0; axis < rank; axis++ {
		if min[axis] < 0 || max[axis] > img.Shape[axis] || min[axis] >= max[axis] {
			return nil, fmt.Errorf("patch bounds [%v, %v) outside image shape %v", min, max, img.Shape)
		}
		shape[axis] = max[axis] - min[axis]
	}
	out, err := New(img.Kind, shape...)
	if err != nil {
		return nil, err
	}
	coord := make([]int, rank)
	src := make([]int, rank)
	for i := 0; i < out.Size(); i++ {
		for axis := 0; axis < rank; axis++ {
			src[axis] = min[axis] + coord[axis]
		}
		out.Data[i] = img.At(src...)
		incrementCoord(coord, shape)
	}
	return out, nil
}

// ClipToKind saturates every value of data to the valid range of the kind,
// [0, max], rounding integer kinds to the nearest integer. The slice is
// modified in place and returned for convenience.
func ClipToKind(data []float64, kind Kind) []float64 {
	max := kind.MaxValue()
	for i, v := range data {
		if kind == Uint8 || kind == Uint16 {
			v = math.Round(v)
		}
		if v < 0 {
			v = 0
		} else if v > max {
			v = max
		}
		data[i] = v
	}
	return data
}

// incrementCoord advances a row-major coordinate counter by one position,
// wrapping each axis at its shape limit.
func incrementCoord(coord, shape []int) {
	for axis := len(coord) - 1; axis >= 0; axis-- {
		coord[axis]++
		if coord[axis] < shape[axis] {
			return
		}
		coord[axis] = 0
	}
}

package gallery

import (
	"bytes"
	"image"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// DHash computes a 64-bit difference hash of an image. The image is scaled
// to 9x8 grayscale and each bit records whether a pixel is brighter than
// its right neighbor. Near-identical images produce hashes within a small
// Hamming distance of each other.
func DHash(imageData []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return 0, errors.Wrap(err, "decoding image for hashing")
	}

	scaled := image.NewRGBA(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

	luma := func(x, y int) float64 {
		r, g, b, _ := scaled.At(x, y).RGBA()
		// ITU-R BT.601 luma formula.
		return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
	}

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if luma(x, y) > luma(x+1, y) {
				hash |= 1 << bit
			}
			bit--
		}
	}

	return hash, nil
}

// HammingDistance counts differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	xor := a ^ b
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1
	}
	return distance
}

package images

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	// maxCoverDim bounds the stored cover's longest edge. Source sites
	// occasionally serve multi-megapixel art; clients never need more.
	maxCoverDim = 1024

	// jpegQuality for re-encoded covers.
	jpegQuality = 85
)

// ProcessedCover is a downloaded cover normalized for storage.
type ProcessedCover struct {
	JPEG     []byte
	Width    int
	Height   int
	BlurHash string
}

// Process decodes a downloaded cover, scales it down to at most
// maxCoverDim on the longest edge, re-encodes it as JPEG, and computes
// a BlurHash placeholder. Accepts JPEG, PNG, GIF, and WebP input.
func Process(data []byte) (*ProcessedCover, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img = scaleDown(img, maxCoverDim, draw.CatmullRom)
	bounds := img.Bounds()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	hash, err := ComputeBlurHash(img)
	if err != nil {
		return nil, fmt.Errorf("compute blurhash: %w", err)
	}

	return &ProcessedCover{
		JPEG:     buf.Bytes(),
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		BlurHash: hash,
	}, nil
}

// scaleDown resizes img so its longest edge is at most maxDim,
// maintaining aspect ratio. Images already within bounds are returned
// untouched.
func scaleDown(img image.Image, maxDim int, scaler draw.Scaler) image.Image {
	bounds := img.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	if srcWidth <= maxDim && srcHeight <= maxDim {
		return img
	}

	// Calculate target dimensions maintaining aspect ratio
	var dstWidth, dstHeight int
	if srcWidth > srcHeight {
		dstWidth = maxDim
		dstHeight = (srcHeight * maxDim) / srcWidth
		if dstHeight < 1 {
			dstHeight = 1
		}
	} else {
		dstHeight = maxDim
		dstWidth = (srcWidth * maxDim) / srcHeight
		if dstWidth < 1 {
			dstWidth = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))
	scaler.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

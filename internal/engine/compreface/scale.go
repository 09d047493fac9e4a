package compreface

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	"image/jpeg"
	_ "image/png" // register decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

// MaxShortSide keeps uploads well under the recognition service's 5MB limit.
const MaxShortSide = 1000

// scaleImage shrinks data so that its shorter side is at most maxShort
// pixels. Images already small enough are returned unchanged.
func scaleImage(data []byte, maxShort int) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image config: %w", err)
	}

	w, h, ok := scaledSize(cfg.Width, cfg.Height, maxShort)
	if !ok {
		return data, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode scaled image: %w", err)
	}
	return out.Bytes(), nil
}

// scaledSize returns the target dimensions and whether scaling is needed.
// Square images are left alone.
func scaledSize(width, height, maxShort int) (int, int, bool) {
	switch {
	case width < height && width > maxShort:
		return maxShort, height * maxShort / width, true
	case width > height && height > maxShort:
		return width * maxShort / height, maxShort, true
	default:
		return width, height, false
	}
}

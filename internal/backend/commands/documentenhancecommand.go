package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"math"

	"github.com/jo-hoe/sicoem/internal/backend/commandstructure"
	"golang.org/x/image/draw"
)

const (
	// MaxDocumentWidth bounds the width of an enhanced document; taller captures keep their aspect ratio.
	MaxDocumentWidth = 1500
	// BackgroundRatio is the fraction of the brightest luma above which a pixel is paper.
	BackgroundRatio = 0.7
	// ForegroundScale is the output level a foreground pixel sitting right at the threshold reaches.
	ForegroundScale = 200.0
	// JPEGQuality is the encoder quality of enhanced documents.
	JPEGQuality = 92
)

// Luma returns the ITU-R BT.601 weighted brightness of an 8-bit RGB pixel.
func Luma(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// ScaledDimensions returns the document size for a capture of width x height: unchanged
// up to maxWidth, otherwise width becomes maxWidth and height follows proportionally.
func ScaledDimensions(width, height, maxWidth int) (int, int) {
	if width <= maxWidth {
		return width, height
	}
	scaledHeight := int(math.Round(float64(height) * float64(maxWidth) / float64(width)))
	if scaledHeight < 1 {
		scaledHeight = 1
	}
	return maxWidth, scaledHeight
}

// Enhance turns a photographed paper form into a print-like document: every pixel
// brighter than 70% of the brightest luma becomes pure white, the rest is mapped
// through a squared contrast curve onto [0, 200]. The input is never modified.
//
// The threshold comes from the single brightest pixel, so one glare spot raises it
// for the whole page and can push genuine background into the foreground branch.
func Enhance(src image.Image) *image.RGBA {
	canvas := prepareCanvas(src)
	threshold := backgroundLevel(canvas) * BackgroundRatio

	width := canvas.Bounds().Dx()
	parallelFor(canvas.Bounds().Dy(), func(y int) {
		row := canvas.Pix[y*canvas.Stride : y*canvas.Stride+width*4]
		for i := 0; i < len(row); i += 4 {
			v := classifyPixel(Luma(row[i], row[i+1], row[i+2]), threshold)
			row[i], row[i+1], row[i+2], row[i+3] = v, v, v, 0xff
		}
	})
	return canvas
}

// prepareCanvas copies src onto an opaque white canvas, downscaling wide captures.
// Transparent regions therefore read as paper.
func prepareCanvas(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := ScaledDimensions(b.Dx(), b.Dy(), MaxDocumentWidth)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}
	return dst
}

// backgroundLevel is the maximum luma over the whole canvas
func backgroundLevel(img *image.RGBA) float64 {
	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	rowMax := make([]float64, height)
	parallelFor(height, func(y int) {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		level := 0.0
		for i := 0; i < len(row); i += 4 {
			if l := Luma(row[i], row[i+1], row[i+2]); l > level {
				level = l
			}
		}
		rowMax[y] = level
	})

	level := 0.0
	for _, l := range rowMax {
		if l > level {
			level = l
		}
	}
	return level
}

// classifyPixel maps a luma value onto the output gray level
func classifyPixel(luma, threshold float64) uint8 {
	if luma > threshold {
		return 0xff
	}
	normalized := luma / threshold
	return clampByte(normalized * normalized * ForegroundScale)
}

// clampByte rounds v into [0, 255]; NaN (an all-black page has threshold 0) maps to 0.
func clampByte(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.RoundToEven(v))
}

// EncodeJPEG encodes an image at the given quality
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	b := img.Bounds()
	buf.Grow(b.Dx() * b.Dy() / 4)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DocumentEnhanceCommand decodes a capture, enhances it and re-encodes it as JPEG.
// It takes no parameters; the enhancement is fully automatic.
type DocumentEnhanceCommand struct {
	name string
}

// NewDocumentEnhanceCommand creates the command; any parameter is rejected
func NewDocumentEnhanceCommand(params map[string]any) (commandstructure.Command, error) {
	if err := commandstructure.ValidateKnownParams(params, nil); err != nil {
		return nil, err
	}
	return &DocumentEnhanceCommand{name: "DocumentEnhanceCommand"}, nil
}

// Name returns the command name
func (c *DocumentEnhanceCommand) Name() string {
	return c.name
}

// Execute enhances the encoded capture and returns a quality-92 JPEG
func (c *DocumentEnhanceCommand) Execute(imageData []byte) ([]byte, error) {
	img, format, err := DecodeImage(imageData)
	if err != nil {
		slog.Error("DocumentEnhanceCommand: failed to decode capture", "error", err)
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("capture has no pixels (%dx%d)", b.Dx(), b.Dy())
	}

	enhanced := Enhance(img)
	slog.Debug("DocumentEnhanceCommand: enhancement complete",
		"format", format,
		"orig_width", b.Dx(),
		"orig_height", b.Dy(),
		"width", enhanced.Bounds().Dx(),
		"height", enhanced.Bounds().Dy())

	out, err := EncodeJPEG(enhanced, JPEGQuality)
	if err != nil {
		slog.Error("DocumentEnhanceCommand: failed to encode document", "error", err)
		return nil, fmt.Errorf("failed to encode enhanced document: %w", err)
	}
	return out, nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("DocumentEnhanceCommand", NewDocumentEnhanceCommand); err != nil {
		panic(fmt.Sprintf("failed to register DocumentEnhanceCommand: %v", err))
	}
}

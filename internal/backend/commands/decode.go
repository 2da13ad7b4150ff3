package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SVG captures without explicit width/height are rendered at A4 150 dpi.
const (
	svgFallbackWidth  = 1240
	svgFallbackHeight = 1754
)

// DecodeImage decodes a captured document. Raster formats registered with the image
// package are supported, as are SVG documents exported by desktop scanning tools.
// The returned string names the detected format.
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image data")
	}

	if isSVGData(data) {
		w, h, ok := parseSvgExplicitSize(data)
		if !ok {
			slog.Debug("DecodeImage: SVG lacks explicit size; using fallback",
				"width", svgFallbackWidth, "height", svgFallbackHeight)
			w, h = svgFallbackWidth, svgFallbackHeight
		}
		img, err := renderSVG(data, w, h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to render SVG capture: %w", err)
		}
		return img, "svg", nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	slog.Debug("DecodeImage: decoded raster capture",
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())
	return img, format, nil
}

// isSVGData looks for an <svg tag or the SVG namespace in the first 4KB.
func isSVGData(data []byte) bool {
	n := len(data)
	if n > 4096 {
		n = 4096
	}
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("xmlns=\"http://www.w3.org/2000/svg\""))
}

// parseSvgExplicitSize extracts integral width and height attributes from the <svg> start tag.
func parseSvgExplicitSize(data []byte) (int, int, bool) {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	s := strings.ToLower(string(data[:n]))
	start := strings.Index(s, "<svg")
	if start < 0 {
		return 0, 0, false
	}
	end := strings.Index(s[start:], ">")
	if end < 0 {
		end = len(s)
	} else {
		end += start
	}
	tag := s[start:end]

	w, wOk := parseNumericAttr(tag, "width")
	h, hOk := parseNumericAttr(tag, "height")
	if wOk && hOk {
		return w, h, true
	}
	return 0, 0, false
}

// parseNumericAttr reads the leading integer of a quoted attribute, e.g. width="210mm" -> 210.
func parseNumericAttr(tag, attr string) (int, bool) {
	pos := strings.Index(tag, " "+attr+"=")
	if pos < 0 {
		return 0, false
	}
	val := tag[pos+len(attr)+2:]
	if len(val) == 0 || (val[0] != '"' && val[0] != '\'') {
		return 0, false
	}
	quote := val[0]
	val = val[1:]
	if end := strings.IndexByte(val, quote); end >= 0 {
		val = val[:end]
	}

	num := 0
	found := false
	for i := 0; i < len(val); i++ {
		ch := val[i]
		if ch < '0' || ch > '9' {
			break
		}
		found = true
		num = num*10 + int(ch-'0')
	}
	if !found || num <= 0 {
		return 0, false
	}
	return num, true
}

// renderSVG rasterizes an SVG onto a white canvas of the given size
func renderSVG(svgData []byte, width, height int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(width, height, dst, dst.Bounds())
	dasher := rasterx.NewDasher(width, height, scanner)
	icon.Draw(dasher, 1.0)
	return dst, nil
}

package commands

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"

	"github.com/jung-kurt/gofpdf"
)

// pdfImageTypes maps image.DecodeConfig formats onto the types gofpdf embeds natively
var pdfImageTypes = map[string]string{
	"jpeg": "JPG",
	"png":  "PNG",
	"gif":  "GIF",
}

// ImageToPDF wraps an encoded document image in a single-page PDF whose page is
// exactly the image size (one pixel per point). Formats gofpdf cannot embed are
// re-encoded as JPEG first.
func ImageToPDF(imageData []byte) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("cannot convert empty image (%dx%d) to PDF", cfg.Width, cfg.Height)
	}

	imageType, ok := pdfImageTypes[format]
	if !ok {
		img, _, err := DecodeImage(imageData)
		if err != nil {
			return nil, err
		}
		if imageData, err = EncodeJPEG(img, JPEGQuality); err != nil {
			return nil, fmt.Errorf("failed to re-encode %s image for PDF: %w", format, err)
		}
		imageType = "JPG"
	}

	width := float64(cfg.Width)
	height := float64(cfg.Height)
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: width, Ht: height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("SICOEM", true)
	pdf.AddPage()

	options := gofpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader("otm", options, bytes.NewReader(imageData))
	pdf.ImageOptions("otm", 0, 0, width, height, false, options, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	slog.Debug("ImageToPDF: document rendered",
		"width", cfg.Width,
		"height", cfg.Height,
		"image_type", imageType,
		"output_size_bytes", buf.Len())
	return buf.Bytes(), nil
}

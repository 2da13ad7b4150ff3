package equipment

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

const DefaultQRSize = 256

// QRCode renders a PNG label encoding the equipment code, as scanned in the field.
func QRCode(code string, size int) ([]byte, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("equipment code is required")
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return png, nil
}

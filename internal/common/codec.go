package common

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EncodePayload converts document bytes into the transport string exchanged with the
// remote document store. Upload and content-fetch paths both go through this pair.
func EncodePayload(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodePayload reverses EncodePayload. A data URL prefix ("data:<mime>;base64,") is
// accepted and stripped, since the capture plugin and browsers hand those out.
func DecodePayload(encoded string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, fmt.Errorf("malformed data url payload")
		}
		s = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return data, nil
}

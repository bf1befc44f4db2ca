package auth

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// renderQR turns the raw handshake code into a PNG data URL the dashboard
// can drop into an <img> tag.
func renderQR(raw string) (string, error) {
	png, err := qrcode.Encode(raw, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

package parser

import (
	"fmt"
	"strings"

	"github.com/boombuler/barcode/qr"
)

const qrQuietZone = 4

// QRCodeSVG renders data as a square SVG with one unit per module.
func QRCodeSVG(data string) (string, error) {
	code, err := qr.Encode(data, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr payload: %w", err)
	}
	bounds := code.Bounds()
	size := bounds.Dx() + 2*qrQuietZone

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" shape-rendering="crispEdges">`, size, size)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#fff"/><path fill="#000" d="`, size, size)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := code.At(x, y).RGBA()
			if r == 0 {
				fmt.Fprintf(&b, "M%d %dh1v1h-1z", x-bounds.Min.X+qrQuietZone, y-bounds.Min.Y+qrQuietZone)
			}
		}
	}
	b.WriteString(`"/></svg>`)
	return b.String(), nil
}

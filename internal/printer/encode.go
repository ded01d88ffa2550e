package printer

import (
	"bytes"

	"github.com/qaraa/printd/internal/render"
)

// ESC/POS control sequences.
var (
	escInit  = []byte{0x1b, 0x40}
	boldOn   = []byte{0x1b, 0x45, 0x01}
	boldOff  = []byte{0x1b, 0x45, 0x00}
	feedCut  = []byte{0x1d, 0x56, 0x42, 0x00}
	lineFeed = []byte{0x0a}
)

// Encode flattens a rendered document into the device byte stream.
// Layout math stays in the renderer; only here do control directives
// become bytes.
func Encode(doc *render.Document, profile DeviceProfile) []byte {
	var buf bytes.Buffer
	buf.Write(escInit)

	for _, line := range doc.Lines {
		for _, seg := range line {
			switch seg.Directive {
			case render.BoldOn:
				buf.Write(boldOn)
			case render.BoldOff:
				buf.Write(boldOff)
			default:
				buf.WriteString(seg.Text)
			}
		}
		buf.Write(lineFeed)
	}

	buf.Write(lineFeed)
	buf.Write(feedCut)
	return buf.Bytes()
}

package render

import "strings"

type Directive int

const (
	BoldOn Directive = iota + 1
	BoldOff
)

// Segment is either printable text or a non-printing device directive.
// A directive segment has zero visible width.
type Segment struct {
	Text      string
	Directive Directive
}

type Line []Segment

type Document struct {
	Lines []Line
}

func (d *Document) append(lines ...Line) {
	d.Lines = append(d.Lines, lines...)
}

func text(s string) Segment {
	return Segment{Text: s}
}

func control(dir Directive) Segment {
	return Segment{Directive: dir}
}

func textLine(s string) Line {
	return Line{text(s)}
}

func boldLine(s string) Line {
	return Line{control(BoldOn), text(s), control(BoldOff)}
}

// truncate cuts s to at most n visible characters. Widths are counted
// in runes, not bytes; payloads are mostly Cyrillic.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func center(s string, width int) string {
	s = truncate(s, width)
	n := len([]rune(s))
	leading := (width - n) / 2
	trailing := width - n - leading
	return strings.Repeat(" ", leading) + s + strings.Repeat(" ", trailing)
}

// justify lays out left and right on one line of the given width with
// at least one space between them. The right part always survives in
// full; left is truncated to make room.
func justify(left, right string, width int) string {
	rightN := len([]rune(right))
	maxLeft := width - rightN - 1
	if maxLeft < 0 {
		maxLeft = 0
	}
	left = truncate(left, maxLeft)
	leftN := len([]rune(left))

	pad := width - leftN - rightN
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right
}

func rule(ch rune, width int) string {
	return strings.Repeat(string(ch), width)
}

package challenge

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand/v2"
	"strconv"
)

// Visual puzzle dimensions and noise density.
const (
	visualWidth  = 300
	visualHeight = 120

	noiseLines   = 8
	noiseSpeckle = 500
	strikeLines  = 4

	glyphScale   = 6 // bitmap font cell is 5x7, scaled up before rotation
	maxGlyphTilt = 15.0
)

// visualAlphabet excludes glyphs that are easy to confuse when distorted
// (I/1, O/0).
const visualAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newVisual generates a distorted-image puzzle: a random number, a short
// alphanumeric string, or a small arithmetic expression, rendered over
// line and speckle noise with per-glyph rotation and color jitter.
func (e *Engine) newVisual() (*Challenge, error) {
	var answer, drawn string
	switch rand.IntN(3) {
	case 0: // number
		answer = strconv.Itoa(1 + rand.IntN(50))
		drawn = answer
	case 1: // text
		b := make([]byte, 4)
		for i := range b {
			b[i] = visualAlphabet[rand.IntN(len(visualAlphabet))]
		}
		answer = string(b)
		drawn = answer
	default: // math
		a := 1 + rand.IntN(20)
		b := 1 + rand.IntN(10)
		switch rand.IntN(3) {
		case 0:
			answer = strconv.Itoa(a + b)
			drawn = fmt.Sprintf("%d+%d", a, b)
		case 1:
			if a < b {
				a, b = b, a
			}
			answer = strconv.Itoa(a - b)
			drawn = fmt.Sprintf("%d-%d", a, b)
		default:
			a = 1 + rand.IntN(10)
			b = 1 + rand.IntN(9)
			answer = strconv.Itoa(a * b)
			drawn = fmt.Sprintf("%dx%d", a, b)
		}
	}

	img, err := e.renderVisual(drawn)
	if err != nil {
		return nil, err
	}
	return &Challenge{Kind: KindVisual, Answer: answer, Image: img}, nil
}

// renderVisual rasterizes the puzzle text into a noisy PNG.
func (e *Engine) renderVisual(text string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, visualWidth, visualHeight))
	fill(img, color.RGBA{255, 255, 255, 255})

	// Background noise: faint lines first, then speckle.
	for i := 0; i < noiseLines; i++ {
		c := color.RGBA{e.grayTone(), e.grayTone(), e.grayTone(), 255}
		drawLine(img,
			rand.IntN(visualWidth), rand.IntN(visualHeight),
			rand.IntN(visualWidth), rand.IntN(visualHeight), c)
	}
	for i := 0; i < noiseSpeckle; i++ {
		img.Set(rand.IntN(visualWidth), rand.IntN(visualHeight), color.RGBA{
			uint8(rand.IntN(256)), uint8(rand.IntN(256)), uint8(rand.IntN(256)), 255,
		})
	}

	// Glyphs, spread across the width with random vertical placement,
	// rotation, and a dark jittered color per glyph.
	spacing := visualWidth / (len(text) + 2)
	x := spacing
	for _, r := range text {
		c := color.RGBA{uint8(rand.IntN(100)), uint8(rand.IntN(100)), uint8(rand.IntN(100)), 255}
		tilt := (rand.Float64()*2 - 1) * maxGlyphTilt
		y := visualHeight/4 + rand.IntN(visualHeight/4)
		drawGlyph(img, r, x, y, tilt, c)
		x += spacing + rand.IntN(21) - 10
	}

	// Strike-through lines over the text to break up glyph contours.
	for i := 0; i < strikeLines; i++ {
		c := color.RGBA{uint8(rand.IntN(150)), uint8(rand.IntN(150)), uint8(rand.IntN(150)), 255}
		y1 := visualHeight/3 + rand.IntN(visualHeight/3)
		y2 := visualHeight/3 + rand.IntN(visualHeight/3)
		drawLine(img, 0, y1, visualWidth, y2, c)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Engine) grayTone() uint8 { return uint8(160 + rand.IntN(41)) }

func fill(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// drawLine plots a straight segment (Bresenham).
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// drawGlyph rasterizes one character from the 5x7 bitmap font at (x, y),
// scaled up and rotated by tilt degrees around the glyph center. Rotation is
// done by inverse mapping over the destination area so no pixels are dropped.
func drawGlyph(img *image.RGBA, r rune, x, y int, tilt float64, c color.RGBA) {
	rows, ok := glyphFont[r]
	if !ok {
		return
	}

	w := 5 * glyphScale
	h := 7 * glyphScale
	cx, cy := float64(w)/2, float64(h)/2
	rad := tilt * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	// Pad the destination box to cover rotated corners.
	pad := glyphScale * 2
	for dy := -pad; dy < h+pad; dy++ {
		for dx := -pad; dx < w+pad; dx++ {
			// Rotate back into glyph space.
			fx := float64(dx) - cx
			fy := float64(dy) - cy
			sxf := fx*cos + fy*sin + cx
			syf := -fx*sin + fy*cos + cy
			sx, sy := int(sxf), int(syf)
			if sx < 0 || sx >= w || sy < 0 || sy >= h {
				continue
			}
			if rows[sy/glyphScale][sx/glyphScale] == '#' {
				img.SetRGBA(x+dx, y+dy, c)
			}
		}
	}
}

// glyphFont is a 5x7 bitmap font covering the visual alphabet, digits, and
// the operators drawn in math puzzles.
var glyphFont = map[rune][7]string{
	'0': {" ### ", "#   #", "#  ##", "# # #", "##  #", "#   #", " ### "},
	'1': {"  #  ", " ##  ", "  #  ", "  #  ", "  #  ", "  #  ", " ### "},
	'2': {" ### ", "#   #", "    #", "   # ", "  #  ", " #   ", "#####"},
	'3': {" ### ", "#   #", "    #", "  ## ", "    #", "#   #", " ### "},
	'4': {"   # ", "  ## ", " # # ", "#  # ", "#####", "   # ", "   # "},
	'5': {"#####", "#    ", "#### ", "    #", "    #", "#   #", " ### "},
	'6': {" ### ", "#    ", "#    ", "#### ", "#   #", "#   #", " ### "},
	'7': {"#####", "    #", "   # ", "  #  ", " #   ", " #   ", " #   "},
	'8': {" ### ", "#   #", "#   #", " ### ", "#   #", "#   #", " ### "},
	'9': {" ### ", "#   #", "#   #", " ####", "    #", "    #", " ### "},
	'A': {" ### ", "#   #", "#   #", "#####", "#   #", "#   #", "#   #"},
	'B': {"#### ", "#   #", "#   #", "#### ", "#   #", "#   #", "#### "},
	'C': {" ### ", "#   #", "#    ", "#    ", "#    ", "#   #", " ### "},
	'D': {"#### ", "#   #", "#   #", "#   #", "#   #", "#   #", "#### "},
	'E': {"#####", "#    ", "#    ", "#### ", "#    ", "#    ", "#####"},
	'F': {"#####", "#    ", "#    ", "#### ", "#    ", "#    ", "#    "},
	'G': {" ### ", "#   #", "#    ", "# ###", "#   #", "#   #", " ### "},
	'H': {"#   #", "#   #", "#   #", "#####", "#   #", "#   #", "#   #"},
	'J': {"  ###", "   # ", "   # ", "   # ", "   # ", "#  # ", " ##  "},
	'K': {"#   #", "#  # ", "# #  ", "##   ", "# #  ", "#  # ", "#   #"},
	'L': {"#    ", "#    ", "#    ", "#    ", "#    ", "#    ", "#####"},
	'M': {"#   #", "## ##", "# # #", "# # #", "#   #", "#   #", "#   #"},
	'N': {"#   #", "##  #", "# # #", "#  ##", "#   #", "#   #", "#   #"},
	'P': {"#### ", "#   #", "#   #", "#### ", "#    ", "#    ", "#    "},
	'Q': {" ### ", "#   #", "#   #", "#   #", "# # #", "#  # ", " ## #"},
	'R': {"#### ", "#   #", "#   #", "#### ", "# #  ", "#  # ", "#   #"},
	'S': {" ####", "#    ", "#    ", " ### ", "    #", "    #", "#### "},
	'T': {"#####", "  #  ", "  #  ", "  #  ", "  #  ", "  #  ", "  #  "},
	'U': {"#   #", "#   #", "#   #", "#   #", "#   #", "#   #", " ### "},
	'V': {"#   #", "#   #", "#   #", "#   #", "#   #", " # # ", "  #  "},
	'W': {"#   #", "#   #", "#   #", "# # #", "# # #", "## ##", "#   #"},
	'X': {"#   #", "#   #", " # # ", "  #  ", " # # ", "#   #", "#   #"},
	'Y': {"#   #", "#   #", " # # ", "  #  ", "  #  ", "  #  ", "  #  "},
	'Z': {"#####", "    #", "   # ", "  #  ", " #   ", "#    ", "#####"},
	'+': {"     ", "  #  ", "  #  ", "#####", "  #  ", "  #  ", "     "},
	'-': {"     ", "     ", "     ", "#####", "     ", "     ", "     "},
	'x': {"     ", "#   #", " # # ", "  #  ", " # # ", "#   #", "     "},
}

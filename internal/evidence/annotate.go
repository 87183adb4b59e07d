// Package evidence writes capture and annotated detection images to disk.
package evidence

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

var labelColors = map[string]color.NRGBA{
	"dog":    {R: 255, A: 255},
	"couch":  {G: 255, A: 255},
	"person": {B: 255, A: 255},
}

const boxThickness = 2

// LabelColor returns the box colour for label. Unknown labels get a stable
// colour derived from the label text.
func LabelColor(label string) color.NRGBA {
	if c, ok := labelColors[label]; ok {
		return c
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(label))
	hue := float64(h.Sum32() % 360)
	r, g, b := colorful.Hsv(hue, 0.8, 0.9).RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// StatusText is the banner drawn on detection images.
func StatusText(result *types.DetectionResult, reference string) string {
	status := "off " + strings.ToLower(reference)
	if result.ConditionMet {
		status = "ON " + strings.ToUpper(reference)
	}
	return fmt.Sprintf("%s | overlap: %.2f", status, result.OverlapRatio)
}

// Annotate returns a copy of img with every box in result outlined and
// labeled, plus a status banner. img is not modified.
func Annotate(img image.Image, result *types.DetectionResult, reference string) *image.NRGBA {
	dst := imaging.Clone(img)

	for _, label := range result.Labels() {
		c := LabelColor(label)
		for _, b := range result.BoxesFor(label) {
			r := image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)).Canon()
			drawRect(dst, r, c)
			drawText(dst, label, r.Min.X, r.Min.Y-4, c)
		}
	}

	bannerColor := color.NRGBA{G: 255, A: 255}
	if result.ConditionMet {
		bannerColor = color.NRGBA{R: 255, A: 255}
	}
	text := StatusText(result, reference)
	// Dark backing so the banner reads on bright frames.
	backing := image.Rect(6, 14, 14+font.MeasureString(basicfont.Face7x13, text).Ceil(), 34)
	draw.Draw(dst, backing.Intersect(dst.Bounds()), image.NewUniform(color.NRGBA{A: 160}), image.Point{}, draw.Over)
	drawText(dst, text, 10, 28, bannerColor)

	return dst
}

func drawRect(dst *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+boxThickness),
		image.Rect(r.Min.X, r.Max.Y-boxThickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+boxThickness, r.Max.Y),
		image.Rect(r.Max.X-boxThickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), u, image.Point{}, draw.Src)
	}
}

func drawText(dst *image.NRGBA, text string, x, y int, c color.NRGBA) {
	// Keep labels of boxes touching the top edge visible.
	if y < 13 {
		y = 13
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

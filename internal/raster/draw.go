package raster

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// maxLat is the Web Mercator latitude limit.
const maxLat = 85.05112878

// canvas maps lon/lat onto an image through Web Mercator.
type canvas struct {
	img            *image.RGBA
	minX, maxY     float64
	scaleX, scaleY float64
}

func newCanvas(w, h int, bound orb.Bound) *canvas {
	lo := project.WGS84.ToMercator(clampLat(bound.Min))
	hi := project.WGS84.ToMercator(clampLat(bound.Max))
	return &canvas{
		img:    image.NewRGBA(image.Rect(0, 0, w, h)),
		minX:   lo[0],
		maxY:   hi[1],
		scaleX: float64(w) / (hi[0] - lo[0]),
		scaleY: float64(h) / (hi[1] - lo[1]),
	}
}

func clampLat(p orb.Point) orb.Point {
	p[1] = math.Max(-maxLat, math.Min(maxLat, p[1]))
	return p
}

// pixel returns the image position of a lon/lat point.
func (c *canvas) pixel(p orb.Point) (float64, float64) {
	m := project.WGS84.ToMercator(clampLat(p))
	return (m[0] - c.minX) * c.scaleX, (c.maxY - m[1]) * c.scaleY
}

func (c *canvas) fill(col color.RGBA) {
	b := c.img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c.img.SetRGBA(x, y, col)
		}
	}
}

// blendAt draws col over the pixel at x,y using col's alpha.
func (c *canvas) blendAt(x, y int, col color.RGBA) {
	if !(image.Point{x, y}.In(c.img.Bounds())) {
		return
	}
	if col.A == 0xff {
		c.img.SetRGBA(x, y, col)
		return
	}
	dst := c.img.RGBAAt(x, y)
	a := float64(col.A) / 0xff
	mix := func(s, d uint8) uint8 { return uint8(math.Round(float64(s)*a + float64(d)*(1-a))) }
	c.img.SetRGBA(x, y, color.RGBA{mix(col.R, dst.R), mix(col.G, dst.G), mix(col.B, dst.B), 0xff})
}

// line draws a one pixel wide segment with Bresenham's algorithm.
func (c *canvas) line(x0, y0, x1, y1 float64, col color.RGBA) {
	ax, ay := int(math.Round(x0)), int(math.Round(y0))
	bx, by := int(math.Round(x1)), int(math.Round(y1))
	dx, dy := abs(bx-ax), -abs(by-ay)
	sx, sy := 1, 1
	if ax > bx {
		sx = -1
	}
	if ay > by {
		sy = -1
	}
	e := dx + dy
	for {
		c.blendAt(ax, ay, col)
		if ax == bx && ay == by {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			ax += sx
		}
		if e2 <= dx {
			e += dx
			ay += sy
		}
	}
}

func (c *canvas) path(ls []orb.Point, col color.RGBA) {
	for i := 1; i < len(ls); i++ {
		x0, y0 := c.pixel(ls[i-1])
		x1, y1 := c.pixel(ls[i])
		c.line(x0, y0, x1, y1, col)
	}
}

// disc fills a circle of radius r centred on p.
func (c *canvas) disc(p orb.Point, r float64, col color.RGBA) {
	cx, cy := c.pixel(p)
	for y := int(math.Floor(cy - r)); y <= int(math.Ceil(cy+r)); y++ {
		for x := int(math.Floor(cx - r)); x <= int(math.Ceil(cx+r)); x++ {
			dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
			if dx*dx+dy*dy <= r*r {
				c.blendAt(x, y, col)
			}
		}
	}
}

// polygon fills p with the even-odd rule, so holes stay empty.
func (c *canvas) polygon(p orb.Polygon, col color.RGBA) {
	type edge struct{ x0, y0, x1, y1 float64 }
	var edges []edge
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, ring := range p {
		for i := 1; i < len(ring); i++ {
			x0, y0 := c.pixel(ring[i-1])
			x1, y1 := c.pixel(ring[i])
			edges = append(edges, edge{x0, y0, x1, y1})
			minY, maxY = math.Min(minY, math.Min(y0, y1)), math.Max(maxY, math.Max(y0, y1))
		}
	}
	if len(edges) == 0 {
		return
	}

	h := c.img.Bounds().Dy()
	ys := max(0, int(math.Floor(minY)))
	ye := min(h-1, int(math.Ceil(maxY)))
	var xs []float64
	for y := ys; y <= ye; y++ {
		sy := float64(y) + 0.5
		xs = xs[:0]
		for _, e := range edges {
			if (e.y0 <= sy) == (e.y1 <= sy) {
				continue
			}
			xs = append(xs, e.x0+(sy-e.y0)*(e.x1-e.x0)/(e.y1-e.y0))
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			for x := int(math.Ceil(xs[i] - 0.5)); x < int(math.Ceil(xs[i+1]-0.5)); x++ {
				c.blendAt(x, y, col)
			}
		}
	}
}

// geometry draws any orb geometry: points as discs, lines as paths and
// polygons filled with an outline.
func (c *canvas) geometry(g orb.Geometry, col color.RGBA, radius float64) {
	switch g := g.(type) {
	case orb.Point:
		c.disc(g, radius, col)
	case orb.MultiPoint:
		for _, p := range g {
			c.disc(p, radius, col)
		}
	case orb.LineString:
		c.path(g, col)
	case orb.MultiLineString:
		for _, ls := range g {
			c.path(ls, col)
		}
	case orb.Ring:
		c.polygon(orb.Polygon{g}, col)
	case orb.Polygon:
		c.polygon(g, col)
		c.outline(g)
	case orb.MultiPolygon:
		for _, p := range g {
			c.polygon(p, col)
			c.outline(p)
		}
	case orb.Collection:
		for _, sub := range g {
			c.geometry(sub, col, radius)
		}
	}
}

func (c *canvas) outline(p orb.Polygon) {
	for _, ring := range p {
		c.path(ring, outlineColor)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

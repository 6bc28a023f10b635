package softgpu

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/offscreen/gpu"
)

type vertex struct {
	x, y  float64
	color mgl32.Vec3
}

func unorm8(v float32) byte {
	return byte(mgl32.Clamp(v, 0, 1)*255 + 0.5)
}

func store(img *image, x, y int, rgba mgl32.Vec4) {
	at := img.offset + y*img.rowPitch + x*4
	texel := img.memory.data[at : at+4]
	texel[0], texel[1], texel[2], texel[3] = unorm8(rgba[0]), unorm8(rgba[1]), unorm8(rgba[2]), unorm8(rgba[3])
	if img.info.Format == gpu.FormatB8G8R8A8Unorm {
		texel[0], texel[2] = texel[2], texel[0]
	}
}

func fill(img *image, extent gpu.Extent2D, color gpu.ClearColor) {
	rgba := mgl32.Vec4(color)
	for y := 0; y < extent.Height; y++ {
		for x := 0; x < extent.Width; x++ {
			store(img, x, y, rgba)
		}
	}
}

// edge is twice the signed area of (a, b, p). Framebuffer y points down.
func edge(a, b vertex, px, py float64) float64 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// topLeft reports whether pixels exactly on the edge a->b belong to the triangle, for a
// triangle whose edge function is positive inside.
func topLeft(a, b vertex) bool {
	dx, dy := b.x-a.x, b.y-a.y
	return (dy == 0 && dx > 0) || dy < 0
}

func rasterize(p *pipeline, target *image, extent gpu.Extent2D, firstVertex, vertexCount int) {
	viewport := p.info.Extent
	for first := firstVertex; first+3 <= firstVertex+vertexCount; first += 3 {
		var tri [3]vertex
		for i := range tri {
			out := p.vertex(first + i)
			w := float64(out.Position[3])
			tri[i] = vertex{
				x:     (float64(out.Position[0])/w + 1) / 2 * float64(viewport.Width),
				y:     (float64(out.Position[1])/w + 1) / 2 * float64(viewport.Height),
				color: out.Color,
			}
		}
		triangle(p, target, extent, tri)
	}
}

func triangle(p *pipeline, target *image, extent gpu.Extent2D, tri [3]vertex) {
	area := edge(tri[0], tri[1], tri[2].x, tri[2].y)
	if area == 0 {
		return
	}

	// Facing uses the framebuffer-space area with y down: positive means counter-clockwise.
	counterClockwise := area < 0
	front := counterClockwise == (p.info.FrontFace == gpu.FrontFaceCounterClockwise)
	if p.info.CullMode&gpu.CullModeBack != 0 && !front {
		return
	}
	if p.info.CullMode&gpu.CullModeFront != 0 && front {
		return
	}

	if area < 0 {
		tri[1], tri[2] = tri[2], tri[1]
		area = -area
	}

	minX := int(math.Max(0, math.Floor(math.Min(tri[0].x, math.Min(tri[1].x, tri[2].x)))))
	minY := int(math.Max(0, math.Floor(math.Min(tri[0].y, math.Min(tri[1].y, tri[2].y)))))
	maxX := int(math.Min(float64(extent.Width-1), math.Ceil(math.Max(tri[0].x, math.Max(tri[1].x, tri[2].x)))))
	maxY := int(math.Min(float64(extent.Height-1), math.Ceil(math.Max(tri[0].y, math.Max(tri[1].y, tri[2].y)))))

	edges := [3][2]int{{1, 2}, {2, 0}, {0, 1}}
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5

			var weights [3]float64
			inside := true
			for i, e := range edges {
				a, b := tri[e[0]], tri[e[1]]
				weights[i] = edge(a, b, px, py)
				if weights[i] < 0 || (weights[i] == 0 && !topLeft(a, b)) {
					inside = false
					break
				}
			}
			if !inside {
				continue
			}

			var color mgl32.Vec3
			for i := range tri {
				color = color.Add(tri[i].color.Mul(float32(weights[i] / area)))
			}
			store(target, x, y, p.fragment(color))
		}
	}
}

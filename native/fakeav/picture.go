package fakeav

import (
	"github.com/xaionaro-go/avcore/types"
)

type planeGeometry struct {
	width  int
	height int
	bpp    int
}

func pictureGeometry(width, height int, pixFmt types.PixelFormat) []planeGeometry {
	switch pixFmt {
	case PixelFormatYUV420P:
		cw, ch := (width+1)/2, (height+1)/2
		return []planeGeometry{{width, height, 1}, {cw, ch, 1}, {cw, ch, 1}}
	case PixelFormatRGB24:
		return []planeGeometry{{width, height, 3}}
	default:
		return []planeGeometry{{width, height, 1}}
	}
}

func pictureStrides(width int, pixFmt types.PixelFormat) []int {
	var strides []int
	for _, g := range pictureGeometry(width, 1, pixFmt) {
		strides = append(strides, g.width*g.bpp)
	}
	return strides
}

// PictureSize is the number of bytes of a packed picture.
func PictureSize(width, height int, pixFmt types.PixelFormat) int {
	total := 0
	for _, g := range pictureGeometry(width, height, pixFmt) {
		total += g.width * g.height * g.bpp
	}
	return total
}

func splitPicture(data []byte, width, height int, pixFmt types.PixelFormat) [][]byte {
	var planes [][]byte
	for _, g := range pictureGeometry(width, height, pixFmt) {
		size := g.width * g.height * g.bpp
		plane := make([]byte, size)
		n := copy(plane, data)
		data = data[n:]
		planes = append(planes, plane)
	}
	return planes
}

// scalePlanes performs a nearest-neighbor resize.
func scalePlanes(
	planes [][]byte,
	srcW, srcH int,
	dstW, dstH int,
	pixFmt types.PixelFormat,
) [][]byte {
	src := pictureGeometry(srcW, srcH, pixFmt)
	dst := pictureGeometry(dstW, dstH, pixFmt)
	result := make([][]byte, len(dst))
	for idx, d := range dst {
		out := make([]byte, d.width*d.height*d.bpp)
		if idx < len(planes) && idx < len(src) && src[idx].width > 0 && src[idx].height > 0 {
			s := src[idx]
			in := planes[idx]
			for y := 0; y < d.height; y++ {
				sy := y * s.height / d.height
				for x := 0; x < d.width; x++ {
					sx := x * s.width / d.width
					si := (sy*s.width + sx) * s.bpp
					di := (y*d.width + x) * d.bpp
					if si+s.bpp <= len(in) {
						copy(out[di:di+d.bpp], in[si:si+s.bpp])
					}
				}
			}
		}
		result[idx] = out
	}
	return result
}

func hflipPlanes(planes [][]byte, width, height int, pixFmt types.PixelFormat) [][]byte {
	geoms := pictureGeometry(width, height, pixFmt)
	result := make([][]byte, len(planes))
	for idx, plane := range planes {
		out := make([]byte, len(plane))
		copy(out, plane)
		if idx < len(geoms) {
			g := geoms[idx]
			for y := 0; y < g.height; y++ {
				for x := 0; x < g.width/2; x++ {
					a := (y*g.width + x) * g.bpp
					b := (y*g.width + g.width - 1 - x) * g.bpp
					if b+g.bpp > len(out) {
						continue
					}
					for k := 0; k < g.bpp; k++ {
						out[a+k], out[b+k] = out[b+k], out[a+k]
					}
				}
			}
		}
		result[idx] = out
	}
	return result
}

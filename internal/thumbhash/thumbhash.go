// Package thumbhash computes ThumbHash placeholders from decoded rasters.
//
// A hash is a few dozen bytes: a 6-byte header (8 with alpha) followed by
// DCT coefficients packed as 4-bit nibbles. Transparent pixels are blended
// over the average colour before the transform. Output depends only on the
// pixels, so identical rasters always hash identically.
package thumbhash

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/AnyUserName/imgcrush/internal/raster"
)

// maxDim bounds the longer side of the working thumbnail.
const maxDim = 100

var (
	ErrEmpty     = errors.New("thumbhash: empty image")
	ErrTruncated = errors.New("thumbhash: truncated hash")
	ErrHeader    = errors.New("thumbhash: bad header")
)

// Four float64 channels per working pixel.
var bufPool = sync.Pool{New: func() any {
	b := make([]float64, maxDim*maxDim*4)
	return &b
}}

// Encode returns the ThumbHash of img. Every channel layout and bit depth
// the raster package supports is accepted.
func Encode(img *raster.Image) ([]byte, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, ErrEmpty
	}

	w, h := thumbSize(int(img.Width), int(img.Height))
	bp := bufPool.Get().(*[]float64)
	defer bufPool.Put(bp)

	px := (*bp)[:w*h*4]
	downsample(img, w, h, px)
	return assemble(w, h, px), nil
}

func thumbSize(w, h int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}

// downsample box-filters img into a w×h grid of non-premultiplied RGBA
// values in [0, 1]. Sources already within maxDim map one to one.
func downsample(img *raster.Image, w, h int, dst []float64) {
	srcW, srcH := int(img.Width), int(img.Height)
	stride := img.Stride()
	bpp := img.Channels.Count() * img.Depth.Bytes()
	read := pixelReader(img)

	for dy := 0; dy < h; dy++ {
		y0, y1 := span(dy, h, srcH)
		for dx := 0; dx < w; dx++ {
			x0, x1 := span(dx, w, srcW)

			var sum [4]float64
			for y := y0; y < y1; y++ {
				off := y*stride + x0*bpp
				for x := x0; x < x1; x++ {
					p := read(off)
					sum[0] += p[0]
					sum[1] += p[1]
					sum[2] += p[2]
					sum[3] += p[3]
					off += bpp
				}
			}

			n := float64((y1 - y0) * (x1 - x0))
			i := (dy*w + dx) * 4
			for c := range sum {
				dst[i+c] = sum[c] / n
			}
		}
	}
}

// pixelReader returns a function reading the pixel at a byte offset as RGBA.
func pixelReader(img *raster.Image) func(off int) [4]float64 {
	s := img.Samples
	at := func(off, k int) float64 { return float64(s[off+k]) / 255 }
	if img.Depth == raster.Depth16 {
		at = func(off, k int) float64 {
			return float64(binary.BigEndian.Uint16(s[off+2*k:])) / 65535
		}
	}

	switch img.Channels {
	case raster.Gray:
		return func(off int) [4]float64 {
			v := at(off, 0)
			return [4]float64{v, v, v, 1}
		}
	case raster.GrayAlpha:
		return func(off int) [4]float64 {
			v := at(off, 0)
			return [4]float64{v, v, v, at(off, 1)}
		}
	case raster.RGB:
		return func(off int) [4]float64 {
			return [4]float64{at(off, 0), at(off, 1), at(off, 2), 1}
		}
	}
	return func(off int) [4]float64 {
		return [4]float64{at(off, 0), at(off, 1), at(off, 2), at(off, 3)}
	}
}

func span(d, dstSize, srcSize int) (int, int) {
	s0 := d * srcSize / dstSize
	s1 := (d + 1) * srcSize / dstSize
	if s1 <= s0 {
		s1 = s0 + 1
	}
	return s0, min(s1, srcSize)
}

// channel is one transformed LPQA plane.
type channel struct {
	dc    float64
	scale float64 // largest |AC|; AC values are normalized by it
	ac    []float64
}

func assemble(w, h int, px []float64) []byte {
	n := w * h

	var avg [3]float64
	var alphaSum float64
	for i := 0; i < n; i++ {
		a := px[i*4+3]
		avg[0] += a * px[i*4]
		avg[1] += a * px[i*4+1]
		avg[2] += a * px[i*4+2]
		alphaSum += a
	}
	if alphaSum > 0 {
		for c := range avg {
			avg[c] /= alphaSum
		}
	}
	hasAlpha := alphaSum < float64(n)

	limit := lumaLimit(hasAlpha)
	long := max(w, h)
	dims := func(k int) (int, int) {
		return max(1, int(math.Round(float64(k*w)/float64(long)))),
			max(1, int(math.Round(float64(k*h)/float64(long))))
	}
	lx, ly := dims(limit)
	cx, cy := dims(3)
	ax, ay := dims(5)

	l := make([]float64, n)
	p := make([]float64, n)
	q := make([]float64, n)
	alpha := make([]float64, n)
	for i := 0; i < n; i++ {
		a := px[i*4+3]
		r := avg[0]*(1-a) + a*px[i*4]
		g := avg[1]*(1-a) + a*px[i*4+1]
		b := avg[2]*(1-a) + a*px[i*4+2]
		l[i] = (r + g + b) / 3
		p[i] = (r+g)/2 - b
		q[i] = r - g
		alpha[i] = a
	}

	lc := transform(l, w, h, lx, ly)
	pc := transform(p, w, h, cx, cy)
	qc := transform(q, w, h, cx, cy)
	var ac channel
	if hasAlpha {
		ac = transform(alpha, w, h, ax, ay)
	}

	landscape := w > h
	dimFlag := lx
	if landscape {
		dimFlag = ly
	}

	header := quant(lc.dc, 63) |
		quant((pc.dc+1)/2, 62)<<6 |
		quant((qc.dc+1)/2, 62)<<12 |
		quant(lc.scale, 31)<<18 |
		flag(hasAlpha)<<23 |
		uint32(dimFlag)<<24 |
		flag(landscape)<<28
	header2 := quant(pc.scale, 63) | quant(qc.scale, 63)<<6

	acOff := 6
	if hasAlpha {
		acOff = 8
	}
	nibbles := len(lc.ac) + len(pc.ac) + len(qc.ac) + len(ac.ac)
	hash := make([]byte, acOff+(nibbles+1)/2)
	binary.LittleEndian.PutUint32(hash, header)
	binary.LittleEndian.PutUint16(hash[4:], uint16(header2))
	if hasAlpha {
		binary.LittleEndian.PutUint16(hash[6:], uint16(quant(ac.dc, 15)|quant(ac.scale, 15)<<4))
	}

	i := 0
	for _, plane := range [][]float64{lc.ac, pc.ac, qc.ac, ac.ac} {
		for _, v := range plane {
			nib := byte(quant(v/2+0.5, 15))
			hash[acOff+i/2] |= nib << (4 * (i % 2))
			i++
		}
	}
	return hash
}

// transform computes the first nx×ny DCT coefficients of one plane.
func transform(plane []float64, w, h, nx, ny int) channel {
	var c channel
	fx := make([]float64, w)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			for x := range fx {
				fx[x] = math.Cos(math.Pi / float64(w) * float64(i) * (float64(x) + 0.5))
			}
			var f float64
			for y := 0; y < h; y++ {
				fy := math.Cos(math.Pi / float64(h) * float64(j) * (float64(y) + 0.5))
				row := plane[y*w : (y+1)*w]
				for x, v := range row {
					f += v * fx[x] * fy
				}
			}
			f /= float64(w * h)

			if i == 0 && j == 0 {
				c.dc = f
				continue
			}
			c.ac = append(c.ac, f)
			c.scale = max(c.scale, math.Abs(f))
		}
	}
	if c.scale > 0 {
		for k := range c.ac {
			c.ac[k] /= c.scale
		}
	}
	return c
}

func lumaLimit(hasAlpha bool) int {
	if hasAlpha {
		return 5
	}
	return 7
}

// quant maps v in [0, 1] onto 0..top.
func quant(v float64, top int) uint32 {
	v = min(max(v, 0), 1)
	return uint32(math.Round(v * float64(top)))
}

func flag(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Header is the decoded fixed part of a hash.
type Header struct {
	HasAlpha  bool
	Landscape bool
	LX, LY    int // luma coefficient grid
}

// ParseHeader decodes and sanity-checks the header of hash, including that
// the hash is long enough to carry its luma coefficients.
func ParseHeader(hash []byte) (Header, error) {
	if len(hash) < 6 {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrTruncated, len(hash))
	}
	v := binary.LittleEndian.Uint32(hash)
	if v>>29 != 0 {
		return Header{}, fmt.Errorf("%w: reserved bits set", ErrHeader)
	}

	hd := Header{HasAlpha: v>>23&1 == 1, Landscape: v>>28&1 == 1}
	limit := lumaLimit(hd.HasAlpha)
	dim := int(v >> 24 & 15)
	if dim < 1 || dim > limit {
		return Header{}, fmt.Errorf("%w: luma size %d", ErrHeader, dim)
	}
	if hd.Landscape {
		hd.LX, hd.LY = limit, dim
	} else {
		hd.LX, hd.LY = dim, limit
	}

	need := 6
	if hd.HasAlpha {
		need = 8
	}
	need += hd.LX * hd.LY / 2 // ceil((LX*LY-1)/2) AC nibbles
	if len(hash) < need {
		return Header{}, fmt.Errorf("%w: %d bytes, want at least %d", ErrTruncated, len(hash), need)
	}
	return hd, nil
}

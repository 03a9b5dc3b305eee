package canvas

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"whiteboard-backend/internal/model"
)

var (
	regularOnce sync.Once
	regularFont *truetype.Font
	regularErr  error
)

func loadRegular() (*truetype.Font, error) {
	regularOnce.Do(func() {
		regularFont, regularErr = truetype.Parse(goregular.TTF)
	})
	return regularFont, regularErr
}

// FontMeasurer 텍스트 폭 측정 및 폰트 face 캐시 (Thread-Safe)
type FontMeasurer struct {
	mu    sync.Mutex
	faces map[float64]font.Face
}

// NewFontMeasurer creates a measurer backed by the Go regular font.
func NewFontMeasurer() *FontMeasurer {
	return &FontMeasurer{faces: make(map[float64]font.Face)}
}

func (m *FontMeasurer) faceLocked(size float64) (font.Face, error) {
	if f, ok := m.faces[size]; ok {
		return f, nil
	}
	ttf, err := loadRegular()
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	f := truetype.NewFace(ttf, &truetype.Options{Size: size, Hinting: font.HintingNone})
	m.faces[size] = f
	return f, nil
}

// Face returns the cached face for size. Faces are not safe for concurrent use; callers
// drawing with it must not share it across goroutines.
func (m *FontMeasurer) Face(size float64) (font.Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.faceLocked(size)
}

// MeasureText returns the advance width of content. Falls back to a rough estimate if the
// font cannot be loaded.
func (m *FontMeasurer) MeasureText(content string, fontSize float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.faceLocked(fontSize)
	if err != nil {
		return float64(len([]rune(content))) * fontSize * 0.6
	}
	return float64(font.MeasureString(f, content)) / 64
}

// ImageSurface 래스터 Surface (PNG 내보내기용)
type ImageSurface struct {
	dc        *gg.Context
	fonts     *FontMeasurer
	composite Composite
}

// NewImageSurface creates a transparent w×h surface.
func NewImageSurface(w, h int, fonts *FontMeasurer) *ImageSurface {
	if fonts == nil {
		fonts = NewFontMeasurer()
	}
	return &ImageSurface{dc: gg.NewContext(w, h), fonts: fonts}
}

func (s *ImageSurface) Clear() {
	s.dc.SetRGBA(0, 0, 0, 0)
	s.dc.Clear()
	s.composite = CompositeSourceOver
}

func (s *ImageSurface) SetComposite(c Composite) { s.composite = c }

func (s *ImageSurface) Polyline(points []model.Point, color string, width float64) {
	if len(points) < 2 {
		return
	}
	if s.composite == CompositeDestinationOut {
		s.erase(points, width)
		return
	}
	tracePolyline(s.dc, points, width)
	setColor(s.dc, color)
	s.dc.Stroke()
}

// erase clears pixels under the path: dst = dst * (1 - maskAlpha). Pixels outside the
// path are left as they are.
func (s *ImageSurface) erase(points []model.Point, width float64) {
	w, h := s.dc.Width(), s.dc.Height()
	mask := gg.NewContext(w, h)
	tracePolyline(mask, points, width)
	mask.SetRGBA(0, 0, 0, 1)
	mask.Stroke()

	dst, ok := s.dc.Image().(*image.RGBA)
	if !ok {
		return
	}
	m, ok := mask.Image().(*image.RGBA)
	if !ok {
		return
	}
	b := dst.Bounds().Intersect(m.Bounds())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			a := uint32(m.Pix[m.PixOffset(x, y)+3])
			if a == 0 {
				continue
			}
			keep := 0xff - a
			i := dst.PixOffset(x, y)
			// premultiplied RGBA: 네 채널 모두 같은 비율로 줄인다
			for c := 0; c < 4; c++ {
				dst.Pix[i+c] = uint8(uint32(dst.Pix[i+c]) * keep / 0xff)
			}
		}
	}
}

func (s *ImageSurface) Rect(x, y, w, h float64, st ShapeStyle) {
	s.dc.DrawRectangle(x, y, w, h)
	s.paint(st)
}

func (s *ImageSurface) Ellipse(cx, cy, rx, ry float64, st ShapeStyle) {
	s.dc.DrawEllipse(cx, cy, rx, ry)
	s.paint(st)
}

func (s *ImageSurface) paint(st ShapeStyle) {
	if st.Fill != "" && st.Fill != "transparent" {
		setColor(s.dc, st.Fill)
		s.dc.FillPreserve()
	}
	width := st.Width
	if width <= 0 {
		width = model.DefaultStrokeWidth
	}
	s.dc.SetLineWidth(width)
	if st.Dashed {
		s.dc.SetDash(PreviewDash...)
	}
	setColor(s.dc, st.Color)
	s.dc.Stroke()
	s.dc.SetDash()
}

func (s *ImageSurface) Text(content string, x, y, fontSize float64, color string) {
	if content == "" {
		return
	}
	face, err := s.fonts.Face(fontSize)
	if err != nil {
		return
	}
	s.fonts.mu.Lock()
	defer s.fonts.mu.Unlock()
	s.dc.SetFontFace(face)
	setColor(s.dc, color)
	s.dc.DrawString(content, x, y)
}

// Image returns the drawn pixels.
func (s *ImageSurface) Image() image.Image {
	return s.dc.Image()
}

// WritePNG encodes the surface composited over a white background.
func (s *ImageSurface) WritePNG(w io.Writer) error {
	out := gg.NewContext(s.dc.Width(), s.dc.Height())
	out.SetRGB(1, 1, 1)
	out.Clear()
	out.DrawImage(s.dc.Image(), 0, 0)
	return out.EncodePNG(w)
}

func tracePolyline(dc *gg.Context, points []model.Point, width float64) {
	dc.SetLineWidth(width)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	dc.MoveTo(points[0].X, points[0].Y)
	for _, p := range points[1:] {
		dc.LineTo(p.X, p.Y)
	}
}

func setColor(dc *gg.Context, c string) {
	if c == "" || c == "transparent" {
		c = model.DefaultColor
	}
	dc.SetHexColor(c)
}

// ExportOptions PNG 내보내기 설정
type ExportOptions struct {
	MinWidth  int
	MinHeight int
	Margin    float64
	MaxSide   int
}

// DefaultExportOptions returns a 1280×720 minimum canvas.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{MinWidth: 1280, MinHeight: 720, Margin: 40, MaxSide: 8192}
}

// RenderPNG draws the whole board, sticky notes included, and encodes it as PNG. The image
// grows to fit elements beyond the minimum size.
func RenderPNG(doc model.Document, fonts *FontMeasurer, opts ExportOptions) ([]byte, error) {
	if fonts == nil {
		fonts = NewFontMeasurer()
	}
	maxX, maxY := Extent(doc, fonts)
	w := clampSide(math.Max(float64(opts.MinWidth), maxX+opts.Margin), opts.MaxSide)
	h := clampSide(math.Max(float64(opts.MinHeight), maxY+opts.Margin), opts.MaxSide)

	surface := NewImageSurface(w, h, fonts)
	NewRenderer(RenderOptions{StickyNotes: true}).Render(surface, doc, Overlay{})

	var buf bytes.Buffer
	if err := surface.WritePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Extent returns the furthest right and bottom coordinates used by any element.
func Extent(doc model.Document, m TextMeasurer) (maxX, maxY float64) {
	grow := func(x, y float64) {
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}
	for _, s := range doc.Strokes {
		for _, p := range s.Points {
			grow(p.X+s.Width, p.Y+s.Width)
		}
	}
	for _, s := range doc.Shapes {
		x, y, w, h := normalizeBox(s.X, s.Y, s.Width, s.Height)
		grow(x+w+s.StrokeWidth, y+h+s.StrokeWidth)
	}
	for _, t := range doc.Texts {
		x, y, w, h := TextBox(t, m)
		grow(x+w, y+h)
	}
	for _, n := range doc.StickyNotes {
		grow(n.X+n.Width, n.Y+n.Height)
	}
	return maxX, maxY
}

func clampSide(v float64, max int) int {
	n := int(math.Ceil(v))
	if max > 0 && n > max {
		return max
	}
	return n
}

// Package raster is the built-in comment layer: scrolling and fixed
// comments drawn into an RGBA buffer.
//
// The default face is basicfont's 7x13 bitmap, which only has Latin glyphs,
// so Japanese comments come out blank with it. Load a CJK-capable
// TrueType or OpenType font with LoadFont and pass it with WithFont.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"sort"
	"strings"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"overlaysync/internal/domain"
)

const (
	DefaultWidth  = 1920
	DefaultHeight = 1080

	// Durations in hundredths of a second.
	scrollDuration = 400
	scrollLead     = 100
	fixedDuration  = 300

	linesPerScreen = 11
)

var errClosed = errors.New("raster surface closed")

type position int

const (
	positionScroll position = iota
	positionTop
	positionBottom
)

type placed struct {
	text    string
	start   int64
	end     int64
	pos     position
	lane    int
	scale   int
	fill    color.RGBA
	outline color.RGBA
	// width and height of the unscaled sprite.
	width  int
	height int
}

type Surface struct {
	mu       sync.Mutex
	width    int
	height   int
	face     font.Face
	ascent   int
	lineH    int
	scale    int
	lanes    int
	comments []placed
	sprites  map[int]*image.RGBA
	img      *image.RGBA
	closed   bool
}

type Option func(*Surface)

// WithFace replaces the default 7x13 bitmap face.
func WithFace(face font.Face) Option {
	return func(s *Surface) {
		if face != nil {
			s.face = face
		}
	}
}

// LoadFont parses a TrueType or OpenType font file. For a collection
// (.ttc/.otc) the first font is used.
func LoadFont(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	f, err := opentype.Parse(data)
	if err == nil {
		return f, nil
	}
	coll, collErr := opentype.ParseCollection(data)
	if collErr != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	f, err = coll.Font(0)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	return f, nil
}

// WithFont draws with f at size points. Faces are not safe for concurrent
// use, so each surface builds its own. A size <= 0 fits about eleven lines
// on screen.
// The default face stays in place if f cannot produce a face.
func WithFont(f *opentype.Font, size float64) Option {
	return func(s *Surface) {
		if f == nil {
			return
		}
		if size <= 0 {
			size = float64(s.height) / linesPerScreen * 0.75
		}
		face, err := opentype.NewFace(f, &opentype.FaceOptions{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return
		}
		s.face = face
	}
}

func New(width, height int, opts ...Option) *Surface {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	s := &Surface{
		width:   width,
		height:  height,
		face:    basicfont.Face7x13,
		sprites: make(map[int]*image.RGBA),
		img:     image.NewRGBA(image.Rect(0, 0, width, height)),
	}
	for _, opt := range opts {
		opt(s)
	}

	metrics := s.face.Metrics()
	s.ascent = metrics.Ascent.Ceil()
	s.lineH = metrics.Height.Ceil() + 2
	s.scale = height / linesPerScreen / s.lineH
	if s.scale < 1 {
		s.scale = 1
	}
	s.lanes = height / (s.lineH * s.scale)
	if s.lanes < 1 {
		s.lanes = 1
	}
	return s
}

func (s *Surface) Size() image.Point {
	return image.Pt(s.width, s.height)
}

func (s *Surface) Image() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

// Load lays out every comment of threads. Lanes are assigned once so a
// comment keeps its row for its whole lifetime.
func (s *Surface) Load(threads []domain.CommentThread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	var comments []placed
	for _, thread := range threads {
		for _, c := range thread.Comments {
			if p, ok := s.place(c); ok {
				comments = append(comments, p)
			}
		}
	}
	sort.SliceStable(comments, func(i, j int) bool { return comments[i].start < comments[j].start })
	s.assignLanes(comments)

	s.comments = comments
	s.sprites = make(map[int]*image.RGBA)
	return nil
}

func (s *Surface) place(c domain.Comment) (placed, bool) {
	text := strings.Join(strings.Fields(c.Body), " ")
	if text == "" {
		return placed{}, false
	}
	vpos := c.VposMs / 10

	p := placed{text: text, pos: positionScroll, scale: s.scale}
	for _, cmd := range c.Commands {
		switch strings.ToLower(cmd) {
		case "ue":
			p.pos = positionTop
		case "shita":
			p.pos = positionBottom
		case "big":
			p.scale = s.scale + s.scale/2
		case "small":
			p.scale = max(1, s.scale*2/3)
		}
	}
	p.fill, p.outline = commentColor(c.Commands)

	if p.pos == positionScroll {
		p.start = vpos - scrollLead
		p.end = p.start + scrollDuration
	} else {
		p.start = vpos
		p.end = vpos + fixedDuration
	}
	p.width = font.MeasureString(s.face, text).Ceil() + 2
	p.height = s.lineH
	return p, true
}

// assignLanes gives each comment the first row that is free when it
// appears. When every row is taken the least busy one is reused.
func (s *Surface) assignLanes(comments []placed) {
	busy := map[position][]int64{
		positionScroll: make([]int64, s.lanes),
		positionTop:    make([]int64, s.lanes),
		positionBottom: make([]int64, s.lanes),
	}
	for i := range comments {
		c := &comments[i]
		rows := busy[c.pos]
		lane := 0
		for l, until := range rows {
			if until <= c.start {
				lane = l
				break
			}
			if until < rows[lane] {
				lane = l
			}
		}
		c.lane = lane
		rows[lane] = c.start + s.occupancy(*c)
	}
}

// occupancy is how long a comment blocks its row.
func (s *Surface) occupancy(c placed) int64 {
	if c.pos != positionScroll {
		return c.end - c.start
	}
	// A scrolling row frees up once the tail has entered the screen.
	w := int64(c.width * c.scale)
	return w * scrollDuration / (int64(s.width) + w)
}

// Clear wipes the buffer. Loaded comments are kept.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.img.Pix)
}

// Paint redraws the buffer with the comments visible at vpos.
func (s *Surface) Paint(vpos int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	clear(s.img.Pix)

	first := sort.Search(len(s.comments), func(i int) bool {
		return s.comments[i].start > vpos-scrollDuration
	})
	visible := make(map[int]struct{})
	for i := first; i < len(s.comments) && s.comments[i].start <= vpos; i++ {
		c := s.comments[i]
		if vpos >= c.end {
			continue
		}
		visible[i] = struct{}{}
		s.drawComment(i, c, vpos)
	}
	for i := range s.sprites {
		if _, ok := visible[i]; !ok {
			delete(s.sprites, i)
		}
	}
	return nil
}

func (s *Surface) drawComment(i int, c placed, vpos int64) {
	sprite, ok := s.sprites[i]
	if !ok {
		sprite = s.renderSprite(c)
		s.sprites[i] = sprite
	}

	w := c.width * c.scale
	h := c.height * c.scale
	var x, y int
	switch c.pos {
	case positionTop:
		x = (s.width - w) / 2
		y = c.lane * s.lineH * s.scale
	case positionBottom:
		x = (s.width - w) / 2
		y = s.height - (c.lane+1)*s.lineH*s.scale
	default:
		elapsed := vpos - c.start
		travel := int64(s.width + w)
		x = s.width - int(elapsed*travel/scrollDuration)
		y = c.lane * s.lineH * s.scale
	}
	dst := image.Rect(x, y, x+w, y+h)
	if !dst.Overlaps(s.img.Bounds()) {
		return
	}
	xdraw.NearestNeighbor.Scale(s.img, dst, sprite, sprite.Bounds(), xdraw.Over, nil)
}

// renderSprite draws the text once at 1x with a one pixel outline.
func (s *Surface) renderSprite(c placed) *image.RGBA {
	sprite := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	baseline := s.ascent + 1
	d := &font.Drawer{Dst: sprite, Face: s.face}

	d.Src = image.NewUniform(c.outline)
	d.Dot = fixed.P(1, baseline+1)
	d.DrawString(c.text)

	d.Src = image.NewUniform(c.fill)
	d.Dot = fixed.P(0, baseline)
	d.DrawString(c.text)
	return sprite
}

// Close drops the buffer. Later paints fail.
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.comments = nil
	s.sprites = nil
}

// Package editor is a retained-mode annotation canvas. Objects (text, shapes,
// sticker glyphs) sit above an optional background image in z-order; edits
// mutate the scene graph and Export rasterizes it to PNG.
package editor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/google/uuid"
)

var (
	ErrNoSelection   = errors.New("no object selected")
	ErrUnknownObject = errors.New("unknown object")
	ErrUnknownFont   = errors.New("unknown font")
)

// Canvas and style defaults. Export renders at ExportScale times the
// working resolution.
const (
	CanvasWidth  = 1080
	CanvasHeight = 1080
	ExportScale  = 2.0

	DefaultFill     = "#ffcc00"
	DefaultFontSize = 40.0
	StickerSize     = 80.0
)

// Fonts lists the selectable font families, in display order. The first
// entry is the default.
var Fonts = []string{"Arial", "Times New Roman", "Courier New", "Impact", "Georgia", "Verdana"}

var fontFiles = map[string]string{
	"Arial":           "arial.ttf",
	"Times New Roman": "times.ttf",
	"Courier New":     "cour.ttf",
	"Impact":          "impact.ttf",
	"Georgia":         "georgia.ttf",
	"Verdana":         "verdana.ttf",
}

// Kind is the object type on the canvas.
type Kind string

const (
	KindText    Kind = "text"
	KindRect    Kind = "rect"
	KindCircle  Kind = "circle"
	KindSticker Kind = "sticker"
)

// Object is one element of the scene graph. Position is the object center
// in canvas coordinates.
type Object struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w,omitempty"`
	H        float64 `json:"h,omitempty"`
	Radius   float64 `json:"radius,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fill     string  `json:"fill,omitempty"`
	Font     string  `json:"font,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
	Bold     bool    `json:"bold,omitempty"`
}

// Scene holds the background and the ordered object list. Index order is
// z-order: the last object draws on top.
type Scene struct {
	mu          sync.Mutex
	fontDir     string
	background  image.Image
	objects     []*Object
	selectedID  string
	editingText bool
}

// New creates an empty scene. background may be nil; when set it is drawn
// scaled and centered below every object and cannot be selected.
func New(fontDir string, background image.Image) *Scene {
	return &Scene{fontDir: fontDir, background: background}
}

// NewFromImage decodes PNG or JPEG data into the background.
func NewFromImage(fontDir string, data []byte) (*Scene, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode background: %w", err)
	}
	return New(fontDir, img), nil
}

// AddText places a text object at the canvas center and selects it.
func (s *Scene) AddText(text string) *Object {
	obj := &Object{
		ID:       uuid.NewString(),
		Kind:     KindText,
		X:        CanvasWidth / 2,
		Y:        CanvasHeight / 2,
		Text:     text,
		Fill:     DefaultFill,
		Font:     Fonts[0],
		FontSize: DefaultFontSize,
		Bold:     true,
	}
	s.add(obj)
	return obj
}

// AddRect places a rectangle at the canvas center and selects it.
func (s *Scene) AddRect() *Object {
	obj := &Object{
		ID:   uuid.NewString(),
		Kind: KindRect,
		X:    CanvasWidth / 2,
		Y:    CanvasHeight / 2,
		W:    300,
		H:    200,
		Fill: DefaultFill,
	}
	s.add(obj)
	return obj
}

// AddCircle places a circle at the canvas center and selects it.
func (s *Scene) AddCircle() *Object {
	obj := &Object{
		ID:     uuid.NewString(),
		Kind:   KindCircle,
		X:      CanvasWidth / 2,
		Y:      CanvasHeight / 2,
		Radius: 120,
		Fill:   DefaultFill,
	}
	s.add(obj)
	return obj
}

// AddSticker places an emoji glyph at the canvas center and selects it.
func (s *Scene) AddSticker(glyph string) *Object {
	obj := &Object{
		ID:       uuid.NewString(),
		Kind:     KindSticker,
		X:        CanvasWidth / 2,
		Y:        CanvasHeight / 2,
		Text:     glyph,
		FontSize: StickerSize,
	}
	s.add(obj)
	return obj
}

func (s *Scene) add(obj *Object) {
	s.mu.Lock()
	s.objects = append(s.objects, obj)
	s.selectedID = obj.ID
	s.editingText = false
	s.mu.Unlock()
}

// Objects returns the scene graph in z-order.
func (s *Scene) Objects() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Object, len(s.objects))
	for i, obj := range s.objects {
		out[i] = *obj
	}
	return out
}

// Select makes an object the edit target.
func (s *Scene) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return ErrUnknownObject
	}
	s.selectedID = id
	s.editingText = false
	return nil
}

// Deselect clears the selection and leaves text-editing mode.
func (s *Scene) Deselect() {
	s.mu.Lock()
	s.selectedID = ""
	s.editingText = false
	s.mu.Unlock()
}

// Selected returns the current edit target, if any.
func (s *Scene) Selected() (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(s.selectedID); i >= 0 {
		return *s.objects[i], true
	}
	return Object{}, false
}

// BeginTextEdit enters inline-editing mode for the selected text object.
func (s *Scene) BeginTextEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(s.selectedID)
	if i < 0 {
		return ErrNoSelection
	}
	if s.objects[i].Kind != KindText {
		return fmt.Errorf("object %s is not text", s.selectedID)
	}
	s.editingText = true
	return nil
}

// EndTextEdit commits the new text content and leaves editing mode.
func (s *Scene) EndTextEdit(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(s.selectedID); i >= 0 && s.editingText {
		s.objects[i].Text = text
	}
	s.editingText = false
}

// Move repositions the selected object.
func (s *Scene) Move(x, y float64) error {
	return s.withSelected(func(obj *Object) error {
		obj.X, obj.Y = x, y
		return nil
	})
}

// SetFill changes the selected object's fill color (hex string).
func (s *Scene) SetFill(hex string) error {
	if _, err := parseHexColor(hex); err != nil {
		return err
	}
	return s.withSelected(func(obj *Object) error {
		obj.Fill = hex
		return nil
	})
}

// SetFont changes the font family of the selected text object.
func (s *Scene) SetFont(family string) error {
	if _, ok := fontFiles[family]; !ok {
		return ErrUnknownFont
	}
	return s.withSelected(func(obj *Object) error {
		if obj.Kind != KindText {
			return fmt.Errorf("object %s is not text", obj.ID)
		}
		obj.Font = family
		return nil
	})
}

// SetFontSize changes the selected text object's size in points.
func (s *Scene) SetFontSize(size float64) error {
	if size <= 0 {
		return fmt.Errorf("invalid font size %v", size)
	}
	return s.withSelected(func(obj *Object) error {
		obj.FontSize = size
		return nil
	})
}

func (s *Scene) withSelected(fn func(*Object) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(s.selectedID)
	if i < 0 {
		return ErrNoSelection
	}
	return fn(s.objects[i])
}

// BringToFront moves the selected object to the top of the z-order.
func (s *Scene) BringToFront() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(s.selectedID)
	if i < 0 {
		return ErrNoSelection
	}
	obj := s.objects[i]
	s.objects = append(s.objects[:i], s.objects[i+1:]...)
	s.objects = append(s.objects, obj)
	return nil
}

// DeleteSelected removes the selected object. While a text object is being
// edited the call is a no-op so keystrokes cannot destroy it.
func (s *Scene) DeleteSelected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editingText {
		return
	}
	i := s.indexLocked(s.selectedID)
	if i < 0 {
		return
	}
	s.objects = append(s.objects[:i], s.objects[i+1:]...)
	s.selectedID = ""
}

// Clear drops every object but keeps the background.
func (s *Scene) Clear() {
	s.mu.Lock()
	s.objects = nil
	s.selectedID = ""
	s.editingText = false
	s.mu.Unlock()
}

func (s *Scene) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, obj := range s.objects {
		if obj.ID == id {
			return i
		}
	}
	return -1
}

// Export rasterizes the scene to PNG at ExportScale times the working
// resolution.
func (s *Scene) Export() ([]byte, error) {
	s.mu.Lock()
	objects := make([]Object, len(s.objects))
	for i, obj := range s.objects {
		objects[i] = *obj
	}
	background := s.background
	fontDir := s.fontDir
	s.mu.Unlock()

	scale := ExportScale
	dc := gg.NewContext(int(CanvasWidth*scale), int(CanvasHeight*scale))
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.Scale(scale, scale)

	if background != nil {
		drawBackground(dc, background)
	}
	for i := range objects {
		if err := drawObject(dc, fontDir, &objects[i]); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// drawBackground scales the image to fit inside the canvas and centers it,
// preserving aspect ratio.
func drawBackground(dc *gg.Context, img image.Image) {
	bounds := img.Bounds()
	iw, ih := float64(bounds.Dx()), float64(bounds.Dy())
	if iw == 0 || ih == 0 {
		return
	}
	ratio := min(CanvasWidth/iw, CanvasHeight/ih)
	dc.Push()
	dc.Translate((CanvasWidth-iw*ratio)/2, (CanvasHeight-ih*ratio)/2)
	dc.Scale(ratio, ratio)
	dc.DrawImage(img, 0, 0)
	dc.Pop()
}

func drawObject(dc *gg.Context, fontDir string, obj *Object) error {
	switch obj.Kind {
	case KindRect:
		r, err := parseHexColor(obj.Fill)
		if err != nil {
			return err
		}
		dc.SetRGB255(r[0], r[1], r[2])
		dc.DrawRectangle(obj.X-obj.W/2, obj.Y-obj.H/2, obj.W, obj.H)
		dc.Fill()
	case KindCircle:
		r, err := parseHexColor(obj.Fill)
		if err != nil {
			return err
		}
		dc.SetRGB255(r[0], r[1], r[2])
		dc.DrawCircle(obj.X, obj.Y, obj.Radius)
		dc.Fill()
	case KindText:
		r, err := parseHexColor(obj.Fill)
		if err != nil {
			return err
		}
		if err := loadFace(dc, fontDir, obj.Font, obj.FontSize); err != nil {
			return err
		}
		dc.SetRGB255(r[0], r[1], r[2])
		dc.DrawStringAnchored(obj.Text, obj.X, obj.Y, 0.5, 0.5)
	case KindSticker:
		// Sticker glyphs render in the default face; color comes from the
		// glyph itself when the font supports it.
		if err := loadFace(dc, fontDir, Fonts[0], obj.FontSize); err != nil {
			return err
		}
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(obj.Text, obj.X, obj.Y, 0.5, 0.5)
	default:
		return fmt.Errorf("%w: kind %q", ErrUnknownObject, obj.Kind)
	}
	return nil
}

func loadFace(dc *gg.Context, fontDir, family string, size float64) error {
	file, ok := fontFiles[family]
	if !ok {
		file = fontFiles[Fonts[0]]
	}
	if err := dc.LoadFontFace(filepath.Join(fontDir, file), size*ExportScale); err != nil {
		return fmt.Errorf("load font %s: %w", family, err)
	}
	return nil
}

func parseHexColor(hex string) ([3]int, error) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return [3]int{}, fmt.Errorf("invalid color %q", hex)
	}
	var rgb [3]int
	for i := 0; i < 3; i++ {
		var v int
		if _, err := fmt.Sscanf(hex[i*2:i*2+2], "%02x", &v); err != nil {
			return [3]int{}, fmt.Errorf("invalid color %q", hex)
		}
		rgb[i] = v
	}
	return rgb, nil
}

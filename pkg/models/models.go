package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bounds on behavioral event collections. Oversized payloads are a DoS
// vector; input beyond these limits is truncated before processing.
const (
	MaxMouseEvents  = 1000
	MaxScrollEvents = 100
	MaxClickEvents  = 100
)

// Session is the aggregate written to storage once per accepted request.
// It is never mutated after construction.
type Session struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Network     NetworkSignals    `json:"network"`
	Browser     BrowserSignals    `json:"browser"`
	Behavioral  BehavioralSignals `json:"behavioral"`
	Fingerprint Fingerprint       `json:"fingerprint"`
}

func NewSessionID() string {
	return uuid.NewString()
}

// SignalBundle is the client-declared plus server-observed signal set
// handed to the fingerprint generator after merging.
type SignalBundle struct {
	Network    NetworkSignals    `json:"network"`
	Browser    BrowserSignals    `json:"browser"`
	Behavioral BehavioralSignals `json:"behavioral"`
}

type NetworkSignals struct {
	IP          string   `json:"ip"`
	JA3         string   `json:"ja3,omitempty"`
	JA4         string   `json:"ja4,omitempty"`
	Headers     []Header `json:"headers"`
	HTTPVersion string   `json:"http_version"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type BrowserSignals struct {
	CanvasHash string      `json:"canvas_hash,omitempty"`
	WebGLHash  string      `json:"webgl_hash,omitempty"`
	AudioHash  string      `json:"audio_hash,omitempty"`
	Fonts      []string    `json:"fonts"`
	Plugins    []string    `json:"plugins"`
	Timezone   string      `json:"timezone"`
	Language   string      `json:"language"`
	Screen     *ScreenInfo `json:"screen,omitempty"`
	UserAgent  string      `json:"user_agent"`
}

type ScreenInfo struct {
	Width       uint32  `json:"width"`
	Height      uint32  `json:"height"`
	AvailWidth  uint32  `json:"avail_width"`
	AvailHeight uint32  `json:"avail_height"`
	ColorDepth  uint8   `json:"color_depth"`
	PixelRatio  float32 `json:"pixel_ratio"`
}

// Validate rejects screen dimensions no real display reports.
func (s *ScreenInfo) Validate() error {
	if s == nil {
		return nil
	}
	if s.Width == 0 || s.Height == 0 || s.Width > 10000 || s.Height > 10000 {
		return fmt.Errorf("screen dimensions out of range: %dx%d", s.Width, s.Height)
	}
	if s.ColorDepth == 0 || s.ColorDepth > 48 {
		return fmt.Errorf("screen color depth out of range: %d", s.ColorDepth)
	}
	if s.PixelRatio <= 0 || s.PixelRatio > 5 {
		return fmt.Errorf("screen pixel ratio out of range: %g", s.PixelRatio)
	}
	return nil
}

type BehavioralSignals struct {
	MouseEvents  []MouseEvent  `json:"mouse_events"`
	ScrollEvents []ScrollEvent `json:"scroll_events"`
	ClickEvents  []ClickEvent  `json:"click_events"`
	Timing       TimingMetrics `json:"timing"`
}

// Truncate caps event collections at their configured bounds and reports
// whether anything was dropped.
func (b *BehavioralSignals) Truncate() bool {
	truncated := false
	if len(b.MouseEvents) > MaxMouseEvents {
		b.MouseEvents = b.MouseEvents[:MaxMouseEvents]
		truncated = true
	}
	if len(b.ScrollEvents) > MaxScrollEvents {
		b.ScrollEvents = b.ScrollEvents[:MaxScrollEvents]
		truncated = true
	}
	if len(b.ClickEvents) > MaxClickEvents {
		b.ClickEvents = b.ClickEvents[:MaxClickEvents]
		truncated = true
	}
	return truncated
}

func (b *BehavioralSignals) Validate() error {
	if len(b.MouseEvents) > MaxMouseEvents {
		return fmt.Errorf("mouse events exceed bound: %d > %d", len(b.MouseEvents), MaxMouseEvents)
	}
	if len(b.ScrollEvents) > MaxScrollEvents {
		return fmt.Errorf("scroll events exceed bound: %d > %d", len(b.ScrollEvents), MaxScrollEvents)
	}
	if len(b.ClickEvents) > MaxClickEvents {
		return fmt.Errorf("click events exceed bound: %d > %d", len(b.ClickEvents), MaxClickEvents)
	}
	return nil
}

type MouseEvent struct {
	TimestampMS uint64 `json:"timestamp_ms"`
	X           int32  `json:"x"`
	Y           int32  `json:"y"`
	EventType   string `json:"event_type"`
}

type ScrollEvent struct {
	TimestampMS uint64 `json:"timestamp_ms"`
	X           int32  `json:"x"`
	Y           int32  `json:"y"`
	DeltaX      int32  `json:"delta_x"`
	DeltaY      int32  `json:"delta_y"`
}

type ClickEvent struct {
	TimestampMS uint64 `json:"timestamp_ms"`
	X           int32  `json:"x"`
	Y           int32  `json:"y"`
	Button      string `json:"button"`
}

type TimingMetrics struct {
	DOMContentLoadedMS     *uint64 `json:"dom_content_loaded_ms,omitempty"`
	LoadTimeMS             *uint64 `json:"load_time_ms,omitempty"`
	TimeToFirstByteMS      *uint64 `json:"time_to_first_byte_ms,omitempty"`
	TimeToFirstInteractMS  *uint64 `json:"time_to_first_interaction_ms,omitempty"`
}

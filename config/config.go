// Package config loads the optional JSON run configuration.  Every field is
// optional, omitted fields fall back to the defaults returned by the Get
// methods so partial files are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/swdee/go-objcount/chunk"
	"github.com/swdee/go-objcount/detect"
	"github.com/swdee/go-objcount/npu"
	"github.com/swdee/go-objcount/source"
	"github.com/swdee/go-objcount/tracker"
)

const (
	DefaultRunDir          = "runs/temp"
	DefaultCatalog         = "coco"
	DefaultImageConfidence = 0.2
	DefaultListen          = "localhost:8080"
	DefaultReduceFPS       = 10.0
	maxFileSize            = 1 * 1024 * 1024
)

// DefaultClasses are preselected when no classes are given
var DefaultClasses = []string{"chair", "laptop"}

// Config is the run configuration file
type Config struct {
	// Model weights and the classes the model was trained on
	Model   *string `json:"model,omitempty"`
	Catalog *string `json:"catalog,omitempty"`
	// Labels is a label file, one class per line, overriding Catalog
	Labels  *string  `json:"labels,omitempty"`
	Classes []string `json:"classes,omitempty"`

	// Detector params
	Confidence      *float64 `json:"confidence,omitempty"`
	ImageConfidence *float64 `json:"image_confidence,omitempty"`
	IoU             *float64 `json:"iou,omitempty"`
	ImgSize         *int     `json:"imgsz,omitempty"`
	MaxDetections   *int     `json:"max_det,omitempty"`
	Device          *string  `json:"device,omitempty"`
	Half            *bool    `json:"half,omitempty"`
	// NPUCore selects the Rockchip NPU cores, see npu.ParseCore
	NPUCore *string `json:"npu_core,omitempty"`

	Tracker *TrackerConfig `json:"tracker,omitempty"`

	// Run params
	RunDir            *string `json:"run_dir,omitempty"`
	ChunkSize         *int    `json:"chunk_size,omitempty"`
	Stride            *int    `json:"vid_stride,omitempty"`
	AbortOnFrameError *bool   `json:"abort_on_frame_error,omitempty"`
	Chart             *bool   `json:"chart,omitempty"`
	History           *string `json:"history,omitempty"`
	Listen            *string `json:"listen,omitempty"`
}

// TrackerConfig overrides individual ByteTrack params
type TrackerConfig struct {
	FrameRate   *int     `json:"frame_rate,omitempty"`
	TrackBuffer *int     `json:"track_buffer,omitempty"`
	TrackThresh *float64 `json:"track_thresh,omitempty"`
	HighThresh  *float64 `json:"high_thresh,omitempty"`
	MatchThresh *float64 `json:"match_thresh,omitempty"`
}

// Load reads a Config from a JSON file.  The file must have a .json
// extension and be under 1MB
func Load(path string) (*Config, error) {

	cleanPath := filepath.Clean(path)

	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)

	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)

	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the values that are set
func (c *Config) Validate() error {

	for name, v := range map[string]*float64{
		"confidence":       c.Confidence,
		"image_confidence": c.ImageConfidence,
		"iou":              c.IoU,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}

	if c.ChunkSize != nil && *c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be at least 1, got %d", *c.ChunkSize)
	}

	if c.Stride != nil && *c.Stride < 1 {
		return fmt.Errorf("vid_stride must be at least 1, got %d", *c.Stride)
	}

	if c.Catalog != nil && c.Labels == nil {
		if _, err := detect.Catalog(*c.Catalog); err != nil {
			return err
		}
	}

	if c.NPUCore != nil {
		if _, err := npu.ParseCore(*c.NPUCore); err != nil {
			return err
		}
	}

	if err := c.DetectConfig(source.Video).Validate(); err != nil {
		return err
	}

	return c.TrackerConfig().Validate()
}

// Merge overlays the fields set in o onto c
func (c *Config) Merge(o *Config) {

	if o == nil {
		return
	}

	if o.Model != nil {
		c.Model = o.Model
	}
	if o.Catalog != nil {
		c.Catalog = o.Catalog
	}
	if o.Labels != nil {
		c.Labels = o.Labels
	}
	if len(o.Classes) > 0 {
		c.Classes = o.Classes
	}
	if o.Confidence != nil {
		c.Confidence = o.Confidence
	}
	if o.ImageConfidence != nil {
		c.ImageConfidence = o.ImageConfidence
	}
	if o.IoU != nil {
		c.IoU = o.IoU
	}
	if o.ImgSize != nil {
		c.ImgSize = o.ImgSize
	}
	if o.MaxDetections != nil {
		c.MaxDetections = o.MaxDetections
	}
	if o.Device != nil {
		c.Device = o.Device
	}
	if o.Half != nil {
		c.Half = o.Half
	}
	if o.NPUCore != nil {
		c.NPUCore = o.NPUCore
	}
	if o.Tracker != nil {
		c.Tracker = o.Tracker
	}
	if o.RunDir != nil {
		c.RunDir = o.RunDir
	}
	if o.ChunkSize != nil {
		c.ChunkSize = o.ChunkSize
	}
	if o.Stride != nil {
		c.Stride = o.Stride
	}
	if o.AbortOnFrameError != nil {
		c.AbortOnFrameError = o.AbortOnFrameError
	}
	if o.Chart != nil {
		c.Chart = o.Chart
	}
	if o.History != nil {
		c.History = o.History
	}
	if o.Listen != nil {
		c.Listen = o.Listen
	}
}

// ClassNames returns the class catalog from the label file when set, else
// the named built in catalog
func (c *Config) ClassNames() ([]string, error) {

	if c.Labels != nil && *c.Labels != "" {
		return detect.LoadLabels(*c.Labels)
	}

	return detect.Catalog(c.GetCatalog())
}

// ClassIDs resolves the requested classes against the catalog
func (c *Config) ClassIDs(catalog []string) ([]int, error) {
	return detect.ResolveClasses(catalog, c.GetClasses())
}

// DetectConfig returns the detector params for the media kind.  Still
// images use the lower image confidence
func (c *Config) DetectConfig(kind source.Kind) detect.Config {

	cfg := detect.DefaultConfig()

	if c.Model != nil {
		cfg.Model = *c.Model
	}

	if c.Confidence != nil {
		cfg.Confidence = float32(*c.Confidence)
	}

	if kind == source.Image {
		cfg.Confidence = float32(c.GetImageConfidence())
	}

	if c.IoU != nil {
		cfg.IoU = float32(*c.IoU)
	}

	if c.ImgSize != nil {
		cfg.ImgSize = *c.ImgSize
	}

	if c.MaxDetections != nil {
		cfg.MaxDetections = *c.MaxDetections
	}

	if c.Device != nil {
		cfg.Device = detect.Device(*c.Device)
	}

	// FP16 defaults on for accelerators
	cfg.Half = cfg.Device != detect.CPU

	if c.Half != nil {
		cfg.Half = *c.Half
	}

	return cfg
}

// TrackerConfig returns the ByteTrack params
func (c *Config) TrackerConfig() tracker.Config {

	cfg := tracker.DefaultConfig()
	t := c.Tracker

	if t == nil {
		return cfg
	}

	if t.FrameRate != nil {
		cfg.FrameRate = *t.FrameRate
	}
	if t.TrackBuffer != nil {
		cfg.TrackBuffer = *t.TrackBuffer
	}
	if t.TrackThresh != nil {
		cfg.TrackThresh = float32(*t.TrackThresh)
	}
	if t.HighThresh != nil {
		cfg.HighThresh = float32(*t.HighThresh)
	}
	if t.MatchThresh != nil {
		cfg.MatchThresh = float32(*t.MatchThresh)
	}

	return cfg
}

// SourceOptions returns the frame reading options
func (c *Config) SourceOptions() source.Options {
	return source.Options{
		Stride:            c.GetStride(),
		AbortOnFrameError: c.AbortOnFrameError != nil && *c.AbortOnFrameError,
	}
}

// GetCatalog returns the built in catalog name or the default
func (c *Config) GetCatalog() string {
	if c.Catalog == nil {
		return DefaultCatalog
	}
	return *c.Catalog
}

// GetClasses returns the requested class names or the default
func (c *Config) GetClasses() []string {
	if len(c.Classes) == 0 {
		return DefaultClasses
	}
	return c.Classes
}

// GetImageConfidence returns the still image confidence or the default
func (c *Config) GetImageConfidence() float64 {
	if c.ImageConfidence == nil {
		return DefaultImageConfidence
	}
	return *c.ImageConfidence
}

// GetNPUCore returns the NPU core selection, automatic by default.  The
// value is checked by Validate
func (c *Config) GetNPUCore() npu.Core {
	if c.NPUCore == nil {
		return npu.CoreAuto
	}
	core, _ := npu.ParseCore(*c.NPUCore)
	return core
}

// GetRunDir returns the output directory or the default
func (c *Config) GetRunDir() string {
	if c.RunDir == nil || *c.RunDir == "" {
		return DefaultRunDir
	}
	return *c.RunDir
}

// GetChunkSize returns the frames per window or the default
func (c *Config) GetChunkSize() int {
	if c.ChunkSize == nil {
		return chunk.DefaultSize
	}
	return *c.ChunkSize
}

// GetStride returns the video frame stride or the default of 1
func (c *Config) GetStride() int {
	if c.Stride == nil {
		return 1
	}
	return *c.Stride
}

// GetChart returns whether to draw the counts chart, off by default
func (c *Config) GetChart() bool {
	return c.Chart != nil && *c.Chart
}

// GetHistory returns the run history database path, empty when disabled
func (c *Config) GetHistory() string {
	if c.History == nil {
		return ""
	}
	return *c.History
}

// GetListen returns the live server address or the default
func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

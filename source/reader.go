package source

import (
	"fmt"
	"math"
	"os"

	"gocv.io/x/gocv"
)

// Info describes the frames a Reader produces
type Info struct {
	Width  int
	Height int
	FPS    float64
	// Frames is the number of frames the reader will return, 0 when unknown
	Frames int
}

// Reader yields raw frames in arrival order
type Reader interface {
	// Read decodes the next frame into img, returning false once the source
	// is exhausted
	Read(img *gocv.Mat) (bool, error)
	Info() Info
	Close() error
}

// Options control frame reading and per frame error handling
type Options struct {
	// Stride returns every Nth frame of a video, values below 2 return all
	Stride int
	// AbortOnFrameError stops the run on the first detector failure instead
	// of logging it and passing the frame through unannotated
	AbortOnFrameError bool
}

// Open returns the Reader for the media variant
func Open(m Media, opts Options) (Reader, error) {

	if err := m.Validate(); err != nil {
		return nil, err
	}

	switch m.Kind {
	case Video:
		return openVideo(m.Path, opts.Stride)
	case Image:
		return openImage(m.Path)
	default:
		return openLive(m)
	}
}

type videoReader struct {
	cap    *gocv.VideoCapture
	stride int
	info   Info
}

func openVideo(path string, stride int) (*videoReader, error) {

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}

	cap, err := gocv.VideoCaptureFile(path)

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}

	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("%w: %s: could not open video", ErrNotFound, path)
	}

	if stride < 1 {
		stride = 1
	}

	frames := int(cap.Get(gocv.VideoCaptureFrameCount))

	if frames < 0 {
		frames = 0
	}

	return &videoReader{
		cap:    cap,
		stride: stride,
		info: Info{
			Width:  int(cap.Get(gocv.VideoCaptureFrameWidth)),
			Height: int(cap.Get(gocv.VideoCaptureFrameHeight)),
			FPS:    cap.Get(gocv.VideoCaptureFPS),
			Frames: strided(frames, stride),
		},
	}, nil
}

// strided returns the number of frames left after keeping every stride'th
func strided(frames, stride int) int {
	return int(math.Ceil(float64(frames) / float64(stride)))
}

func (v *videoReader) Read(img *gocv.Mat) (bool, error) {

	for {
		if ok := v.cap.Read(img); !ok {
			return false, nil
		}

		if !img.Empty() {
			break
		}
	}

	if v.stride > 1 {
		v.cap.Grab(v.stride - 1)
	}

	return true, nil
}

func (v *videoReader) Info() Info {
	return v.info
}

func (v *videoReader) Close() error {
	return v.cap.Close()
}

// imageReader yields a single still image
type imageReader struct {
	img  gocv.Mat
	done bool
}

func openImage(path string) (*imageReader, error) {

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}

	img := gocv.IMRead(path, gocv.IMReadColor)

	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("%w: %s: could not decode image", ErrNotFound, path)
	}

	return &imageReader{img: img}, nil
}

func (r *imageReader) Read(img *gocv.Mat) (bool, error) {

	if r.done {
		return false, nil
	}

	r.done = true
	r.img.CopyTo(img)

	return true, nil
}

func (r *imageReader) Info() Info {
	return Info{
		Width:  r.img.Cols(),
		Height: r.img.Rows(),
		Frames: 1,
	}
}

func (r *imageReader) Close() error {
	return r.img.Close()
}

// liveReader reads from a camera device or network stream until it stops
// delivering frames
type liveReader struct {
	cap  *gocv.VideoCapture
	info Info
}

func openLive(m Media) (*liveReader, error) {

	var dev interface{} = m.Device

	if m.URL != "" {
		dev = m.URL
	}

	cap, err := gocv.OpenVideoCapture(dev)

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, m, err)
	}

	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("%w: %s: could not open capture", ErrNotFound, m)
	}

	return &liveReader{
		cap: cap,
		info: Info{
			Width:  int(cap.Get(gocv.VideoCaptureFrameWidth)),
			Height: int(cap.Get(gocv.VideoCaptureFrameHeight)),
			FPS:    cap.Get(gocv.VideoCaptureFPS),
		},
	}, nil
}

func (l *liveReader) Read(img *gocv.Mat) (bool, error) {

	if ok := l.cap.Read(img); !ok {
		return false, nil
	}

	if img.Empty() {
		return false, fmt.Errorf("empty frame from %s", l.info.String())
	}

	return true, nil
}

func (l *liveReader) Info() Info {
	return l.info
}

func (l *liveReader) Close() error {
	return l.cap.Close()
}

// String formats the frame geometry
func (i Info) String() string {
	return fmt.Sprintf("%dx%d@%.2ffps", i.Width, i.Height, i.FPS)
}

// BufferReader replays frames held in memory
type BufferReader struct {
	frames []gocv.Mat
	pos    int
	info   Info
}

// NewBufferReader returns a reader over frames.  The reader does not take
// ownership of the Mats
func NewBufferReader(frames []gocv.Mat, fps float64) *BufferReader {

	info := Info{FPS: fps, Frames: len(frames)}

	if len(frames) > 0 {
		info.Width = frames[0].Cols()
		info.Height = frames[0].Rows()
	}

	return &BufferReader{frames: frames, info: info}
}

// Buffer reads every frame of r into memory and closes r
func Buffer(r Reader) (*BufferReader, error) {

	defer r.Close()

	var frames []gocv.Mat

	for {
		img := gocv.NewMat()
		ok, err := r.Read(&img)

		if err != nil || !ok {
			img.Close()

			if err != nil {
				for _, f := range frames {
					f.Close()
				}
				return nil, err
			}

			break
		}

		frames = append(frames, img)
	}

	b := NewBufferReader(frames, r.Info().FPS)
	return b, nil
}

func (b *BufferReader) Read(img *gocv.Mat) (bool, error) {

	if b.pos >= len(b.frames) {
		return false, nil
	}

	b.frames[b.pos].CopyTo(img)
	b.pos++

	return true, nil
}

// Replay returns a new reader over the same frames starting at the first
// one.  Replays may be read concurrently, the frames are only copied from
func (b *BufferReader) Replay() *BufferReader {
	return &BufferReader{frames: b.frames, info: b.info}
}

func (b *BufferReader) Info() Info {
	return b.info
}

// Close does nothing, see Release
func (b *BufferReader) Close() error {
	return nil
}

// Release frees the buffered frames
func (b *BufferReader) Release() {
	for _, f := range b.frames {
		f.Close()
	}
	b.frames = nil
}

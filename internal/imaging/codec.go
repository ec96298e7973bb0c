package imaging

import (
	"fmt"

	"gocv.io/x/gocv"

	"thermal-monitor-go/internal/models"
)

// Codec converts raw BGR frames to encoded images via gocv.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

// EncodeJPEG encodes a frame's BGR24 pixel buffer as JPEG.
func (c *Codec) EncodeJPEG(frame *models.Frame) ([]byte, error) {
	if frame == nil || len(frame.Data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	expected := frame.Width * frame.Height * 3
	if len(frame.Data) != expected {
		return nil, fmt.Errorf("frame buffer size %d does not match %dx%d BGR24", len(frame.Data), frame.Width, frame.Height)
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to build mat: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	defer buf.Close()

	encoded := make([]byte, buf.Len())
	copy(encoded, buf.GetBytes())
	return encoded, nil
}

package detect

import (
	"fmt"
	"image"
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"thermal-monitor-go/internal/models"
)

// Detector runs a YOLO ONNX model over frames via the gocv DNN module.
// Detect is synchronous and side-effect free; zero detections is an empty
// slice, never an error.
type Detector struct {
	mu            sync.Mutex
	net           gocv.Net
	inputSize     int
	confThreshold float32
	nmsThreshold  float32
}

// Load reads the ONNX model from disk. An unloadable model is a fatal
// startup condition for the caller.
func Load(modelPath string, inputSize int, confThreshold, nmsThreshold float64) (*Detector, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %s", modelPath)
	}

	log.Info().
		Str("model", modelPath).
		Int("input_size", inputSize).
		Float64("confidence_threshold", confThreshold).
		Msg("Detection model loaded")

	return &Detector{
		net:           net,
		inputSize:     inputSize,
		confThreshold: float32(confThreshold),
		nmsThreshold:  float32(nmsThreshold),
	}, nil
}

// Close releases the model.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// Detect runs one forward pass over the frame.
func (d *Detector) Detect(frame *models.Frame) ([]models.Detection, error) {
	if frame == nil || len(frame.Data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to build mat: %w", err)
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0,
		image.Pt(d.inputSize, d.inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected model output rank %d", len(dims))
	}
	rows, cols := dims[1], dims[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to access model output: %w", err)
	}

	scaleX := float64(frame.Width) / float64(d.inputSize)
	scaleY := float64(frame.Height) / float64(d.inputSize)
	boxes, scores := decodeYOLO(data, rows, cols, d.confThreshold, scaleX, scaleY, frame.Width, frame.Height)
	if len(boxes) == 0 {
		return []models.Detection{}, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, d.confThreshold, d.nmsThreshold)

	detections := make([]models.Detection, 0, len(keep))
	for _, idx := range keep {
		box := boxes[idx]
		detections = append(detections, models.Detection{
			Confidence: float64(scores[idx]),
			X1:         box.Min.X,
			Y1:         box.Min.Y,
			X2:         box.Max.X,
			Y2:         box.Max.Y,
		})
	}
	return detections, nil
}

package detect

import (
	"image"
)

// decodeYOLO converts a YOLOv8-style ONNX output tensor into candidate boxes
// and scores, filtered by the confidence threshold.
//
// The tensor is laid out row-major as rows x cols, where each column is one
// candidate: cx, cy, w, h followed by one score per class. Box coordinates
// are in model-input space and are scaled back to frame space with scaleX /
// scaleY, then clamped to the frame.
func decodeYOLO(data []float32, rows, cols int, confThreshold float32, scaleX, scaleY float64, frameW, frameH int) ([]image.Rectangle, []float32) {
	if rows < 5 || cols <= 0 || len(data) < rows*cols {
		return nil, nil
	}

	classes := rows - 4
	var boxes []image.Rectangle
	var scores []float32

	for col := 0; col < cols; col++ {
		best := float32(0)
		for cls := 0; cls < classes; cls++ {
			if s := data[(4+cls)*cols+col]; s > best {
				best = s
			}
		}
		if best < confThreshold {
			continue
		}

		cx := float64(data[0*cols+col]) * scaleX
		cy := float64(data[1*cols+col]) * scaleY
		w := float64(data[2*cols+col]) * scaleX
		h := float64(data[3*cols+col]) * scaleY

		x1, y1, x2, y2 := clampBox(
			int(cx-w/2), int(cy-h/2),
			int(cx+w/2), int(cy+h/2),
			frameW, frameH,
		)
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		scores = append(scores, best)
	}

	return boxes, scores
}

// clampBox confines box corners to the frame, preserving x1<=x2 and y1<=y2.
func clampBox(x1, y1, x2, y2, frameW, frameH int) (int, int, int, int) {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	x1 = clamp(x1, 0, frameW)
	x2 = clamp(x2, 0, frameW)
	y1 = clamp(y1, 0, frameH)
	y2 = clamp(y2, 0, frameH)
	return x1, y1, x2, y2
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

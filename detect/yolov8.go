package detect

import "fmt"

// DecodeYOLOv8 decodes the raw output of a YOLOv8 ONNX model.  The tensor is
// laid out as [1, 4+numClasses, anchors] where the first four rows hold the
// box centre x, centre y, width and height in model input pixels and the
// remaining rows hold the per class scores
func DecodeYOLOv8(data []float32, numClasses, anchors int,
	threshold float32) ([]Candidate, error) {

	if numClasses <= 0 || anchors <= 0 {
		return nil, fmt.Errorf("invalid output shape, classes=%d anchors=%d",
			numClasses, anchors)
	}

	if want := (4 + numClasses) * anchors; len(data) < want {
		return nil, fmt.Errorf("output tensor has %d values, expected %d",
			len(data), want)
	}

	var cands []Candidate

	for i := 0; i < anchors; i++ {

		best := -1
		bestScore := float32(0)

		for c := 0; c < numClasses; c++ {
			if s := data[(4+c)*anchors+i]; s > bestScore {
				best = c
				bestScore = s
			}
		}

		if best < 0 || bestScore < threshold {
			continue
		}

		cx := data[i]
		cy := data[anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		cands = append(cands, Candidate{
			X1:    cx - w/2,
			Y1:    cy - h/2,
			X2:    cx + w/2,
			Y2:    cy + h/2,
			Score: bestScore,
			Class: best,
		})
	}

	return cands, nil
}

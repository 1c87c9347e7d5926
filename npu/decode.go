package npu

import (
	"fmt"
	"math"

	"github.com/swdee/go-objcount/detect"
)

// branches is the number of detection heads of a YOLOv8 model, one per
// stride of 8, 16 and 32
const branches = 3

// Decode turns the split output tensors of an RKNN YOLOv8 model into
// candidate boxes in model input space.  Each of the three heads has a box
// tensor of 4*dfl channels, a class score tensor and optionally a score sum
// tensor used to skip empty cells.  inputH is the model input height the
// head strides are derived from
func Decode(outs []Tensor, inputH int, threshold float32) ([]detect.Candidate, error) {

	if len(outs) == 0 || len(outs)%branches != 0 {
		return nil, fmt.Errorf("expected outputs in multiples of %d, got %d", branches, len(outs))
	}

	per := len(outs) / branches

	if per != 2 && per != 3 {
		return nil, fmt.Errorf("expected 2 or 3 outputs per branch, got %d", per)
	}

	var cands []detect.Candidate

	for b := 0; b < branches; b++ {

		box, score := outs[b*per], outs[b*per+1]

		var sum *Tensor

		if per == 3 {
			sum = &outs[b*per+2]
		}

		gridH, gridW := box.dim(2), box.dim(3)

		if gridH == 0 || gridW == 0 || box.dim(1)%4 != 0 {
			return nil, fmt.Errorf("branch %d has unexpected box dims %v", b, box.Dims)
		}

		if score.dim(2) != gridH || score.dim(3) != gridW {
			return nil, fmt.Errorf("branch %d score dims %v do not match box dims %v",
				b, score.Dims, box.Dims)
		}

		cands = decodeBranch(cands, box, score, sum, gridH, gridW,
			inputH/gridH, box.dim(1)/4, score.dim(1), threshold)
	}

	return cands, nil
}

// decodeBranch appends the candidates of one detection head
func decodeBranch(cands []detect.Candidate, box, score Tensor, sum *Tensor,
	gridH, gridW, stride, dflLen, classes int, threshold float32) []detect.Candidate {

	gridLen := gridH * gridW
	logits := make([]float32, 4*dflLen)

	for i := 0; i < gridH; i++ {
		for j := 0; j < gridW; j++ {

			offset := i*gridW + j

			if sum != nil && sum.at(offset) < threshold {
				continue
			}

			maxClass := -1
			maxScore := threshold

			for c := 0; c < classes; c++ {
				if s := score.at(offset + c*gridLen); s > maxScore {
					maxScore = s
					maxClass = c
				}
			}

			if maxClass < 0 {
				continue
			}

			for k := range logits {
				logits[k] = box.at(offset + k*gridLen)
			}

			dist := computeDFL(logits, dflLen)

			cands = append(cands, detect.Candidate{
				X1:    (-dist[0] + float32(j) + 0.5) * float32(stride),
				Y1:    (-dist[1] + float32(i) + 0.5) * float32(stride),
				X2:    (dist[2] + float32(j) + 0.5) * float32(stride),
				Y2:    (dist[3] + float32(i) + 0.5) * float32(stride),
				Score: maxScore,
				Class: maxClass,
			})
		}
	}

	return cands
}

// computeDFL reduces the distribution focal loss bins of each box side to
// the expected distance from the cell centre
func computeDFL(logits []float32, dflLen int) [4]float32 {

	var box [4]float32

	for b := 0; b < 4; b++ {

		var expSum, acc float32
		bins := logits[b*dflLen : (b+1)*dflLen]

		for _, v := range bins {
			expSum += float32(math.Exp(float64(v)))
		}

		for i, v := range bins {
			acc += float32(math.Exp(float64(v))) / expSum * float32(i)
		}

		box[b] = acc
	}

	return box
}

package detect

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Kitchen is the class catalog of the kitchen utensil model
var Kitchen = []string{"cup", "cutter", "fork", "knife", "painting", "pan",
	"plant", "plate", "scissor", "spoon"}

// COCO is the 80 class catalog of the stock COCO trained models
var COCO = []string{"person", "bicycle", "car", "motorbike", "aeroplane",
	"bus", "train", "truck", "boat", "traffic light", "fire hydrant",
	"stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard",
	"sports ball", "kite", "baseball bat", "baseball glove", "skateboard",
	"surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork",
	"knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "sofa",
	"pottedplant", "bed", "diningtable", "toilet", "tvmonitor", "laptop",
	"mouse", "remote", "keyboard", "cell phone", "microwave", "oven",
	"toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors",
	"teddy bear", "hair drier", "toothbrush"}

// Catalog returns a built in class catalog by name
func Catalog(name string) ([]string, error) {

	switch strings.ToLower(name) {
	case "kitchen":
		return Kitchen, nil
	case "coco":
		return COCO, nil
	}

	return nil, fmt.Errorf("unknown class catalog %q", name)
}

// LoadLabels reads the labels used to train the model from the given text
// file, one label per line.  Blank lines are skipped
func LoadLabels(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening labels file: %w", err)
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)

	var labels []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		labels = append(labels, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading labels file: %w", err)
	}

	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", file)
	}

	return labels, nil
}

// ResolveClasses converts a list of class names or numeric class ids into
// catalog indexes.  Duplicates are removed and input order is kept
func ResolveClasses(catalog []string, classes []string) ([]int, error) {

	index := make(map[string]int, len(catalog))

	for i, name := range catalog {
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}

	seen := make(map[int]bool)
	var ids []int

	for _, c := range classes {
		c = strings.TrimSpace(c)

		if c == "" {
			continue
		}

		id, ok := index[c]

		if !ok {
			n, err := strconv.Atoi(c)

			if err != nil || n < 0 || n >= len(catalog) {
				return nil, fmt.Errorf("unknown class %q", c)
			}

			id = n
		}

		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("no classes selected")
	}

	return ids, nil
}

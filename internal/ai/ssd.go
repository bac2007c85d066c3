package ai

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// SSDRow is one detection row of an SSD network output:
// [image_id, class_id, confidence, x1, y1, x2, y2] with box corners
// normalized to 0..1.
type SSDRow [7]float32

// Labels maps detector class ids to object names.
type Labels map[int]string

// Name returns the label for id, or false when the id is unknown.
func (l Labels) Name(id int) (string, bool) {
	name, ok := l[id]
	return name, ok && name != ""
}

// LoadLabels reads one label per line; line N (counting from 0) names class
// id N. Blank lines leave their id unnamed.
func LoadLabels(path string) (Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	labels := make(Labels)
	scanner := bufio.NewScanner(f)
	for id := 0; scanner.Scan(); id++ {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			labels[id] = name
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return labels, nil
}

// DecodeSSD converts raw SSD rows into objects for a width×height frame,
// keeping rows at or above minConfidence whose class has a name.
func DecodeSSD(rows []SSDRow, width, height int, minConfidence float64, labels Labels) []Object {
	objects := make([]Object, 0)
	w, h := float64(width), float64(height)

	for _, row := range rows {
		confidence := float64(row[2])
		if confidence < minConfidence {
			continue
		}
		name, ok := labels.Name(int(row[1]))
		if !ok {
			continue
		}
		objects = append(objects, Object{
			Name:       name,
			Confidence: confidence,
			Box: [4]float64{
				clampUnit(float64(row[3])) * w,
				clampUnit(float64(row[4])) * h,
				clampUnit(float64(row[5])) * w,
				clampUnit(float64(row[6])) * h,
			},
		})
	}
	return objects
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// COCOLabels is the class map of the TensorFlow SSD COCO models.
var COCOLabels = Labels{
	1: "person", 2: "bicycle", 3: "car", 4: "motorcycle", 5: "airplane",
	6: "bus", 7: "train", 8: "truck", 9: "boat", 10: "traffic light",
	11: "fire hydrant", 13: "stop sign", 14: "parking meter", 15: "bench",
	16: "bird", 17: "cat", 18: "dog", 19: "horse", 20: "sheep", 21: "cow",
	22: "elephant", 23: "bear", 24: "zebra", 25: "giraffe", 27: "backpack",
	28: "umbrella", 31: "handbag", 32: "tie", 33: "suitcase", 34: "frisbee",
	35: "skis", 36: "snowboard", 37: "sports ball", 38: "kite",
	39: "baseball bat", 40: "baseball glove", 41: "skateboard",
	42: "surfboard", 43: "tennis racket", 44: "bottle", 46: "wine glass",
	47: "cup", 48: "fork", 49: "knife", 50: "spoon", 51: "bowl",
	52: "banana", 53: "apple", 54: "sandwich", 55: "orange", 56: "broccoli",
	57: "carrot", 58: "hot dog", 59: "pizza", 60: "donut", 61: "cake",
	62: "chair", 63: "couch", 64: "potted plant", 65: "bed",
	67: "dining table", 70: "toilet", 72: "tv", 73: "laptop", 74: "mouse",
	75: "remote", 76: "keyboard", 77: "cell phone", 78: "microwave",
	79: "oven", 80: "toaster", 81: "sink", 82: "refrigerator", 84: "book",
	85: "clock", 86: "vase", 87: "scissors", 88: "teddy bear",
	89: "hair drier", 90: "toothbrush",
}

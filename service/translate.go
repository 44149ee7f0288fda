package service

import (
	"fmt"

	iface "ObjDetServer/interface"
)

// translate turns the backend's parallel arrays into the response shape.
// Box corners become ints by truncation toward zero, class indices resolve
// through the label table, and the backend's ordering is preserved. Zero
// candidates yield an empty, non-nil slice so the JSON stays [] not null.
func translate(raw iface.RawResult, names []string) ([]iface.Detection, error) {
	n := len(raw.Scores)
	if len(raw.Classes) != n || len(raw.Boxes) != n*4 {
		return nil, &iface.ContractError{Reason: fmt.Sprintf(
			"mismatched result arrays: %d box floats, %d scores, %d classes",
			len(raw.Boxes), n, len(raw.Classes))}
	}
	dets := make([]iface.Detection, 0, n)
	for i := 0; i < n; i++ {
		idx := int(raw.Classes[i])
		if idx < 0 || idx >= len(names) {
			return nil, &iface.UnknownClassError{Index: idx, TableSize: len(names)}
		}
		score := raw.Scores[i]
		// negated form so NaN fails the check too
		if !(score >= 0 && score <= 1) {
			return nil, &iface.ContractError{Reason: fmt.Sprintf("confidence %v outside [0, 1]", score)}
		}
		dets = append(dets, iface.Detection{
			ClassName:  names[idx],
			Confidence: score,
			BBox: iface.BoundingBox{
				XMin: int(raw.Boxes[i*4]),
				YMin: int(raw.Boxes[i*4+1]),
				XMax: int(raw.Boxes[i*4+2]),
				YMax: int(raw.Boxes[i*4+3]),
			},
		})
	}
	return dets, nil
}

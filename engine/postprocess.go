package engine

import (
	"sort"

	iface "ObjDetServer/interface"
)

type candidate struct {
	x1, y1, x2, y2 float32
	score          float32
	class          int32
}

// decodeOutput walks the raw [4+nc, cells] tensor, keeps candidates scoring
// strictly above conf, converts centers to corners scaled into original
// image pixels and clamped to the image, then applies greedy per-class NMS
// at the given IoU threshold. Survivors come back ordered by falling score.
func decodeOutput(out []float32, nc, cells int, conf, iou float32, origW, origH, inputSize int) iface.RawResult {
	sw := float32(origW) / float32(inputSize)
	sh := float32(origH) / float32(inputSize)
	var cands []candidate
	for i := 0; i < cells; i++ {
		cls := 0
		best := out[4*cells+i]
		for j := 1; j < nc; j++ {
			if s := out[(4+j)*cells+i]; s > best {
				best = s
				cls = j
			}
		}
		if best <= conf {
			continue
		}
		xc, yc := out[i], out[cells+i]
		w, h := out[2*cells+i], out[3*cells+i]
		cands = append(cands, candidate{
			x1:    clampF((xc-w/2)*sw, 0, float32(origW)),
			y1:    clampF((yc-h/2)*sh, 0, float32(origH)),
			x2:    clampF((xc+w/2)*sw, 0, float32(origW)),
			y2:    clampF((yc+h/2)*sh, 0, float32(origH)),
			score: best,
			class: int32(cls),
		})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	kept := make([]candidate, 0, len(cands))
	suppressed := make([]bool, len(cands))
	for i := range cands {
		if suppressed[i] {
			continue
		}
		kept = append(kept, cands[i])
		for j := i + 1; j < len(cands); j++ {
			if suppressed[j] || cands[j].class != cands[i].class {
				continue
			}
			if boxIoU(cands[i], cands[j]) > iou {
				suppressed[j] = true
			}
		}
	}

	res := iface.RawResult{
		Boxes:   make([]float32, 0, len(kept)*4),
		Scores:  make([]float32, 0, len(kept)),
		Classes: make([]int32, 0, len(kept)),
	}
	for _, c := range kept {
		res.Boxes = append(res.Boxes, c.x1, c.y1, c.x2, c.y2)
		res.Scores = append(res.Scores, c.score)
		res.Classes = append(res.Classes, c.class)
	}
	return res
}

func boxIoU(a, b candidate) float32 {
	interW := min(a.x2, b.x2) - max(a.x1, b.x1)
	interH := min(a.y2, b.y2) - max(a.y1, b.y1)
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH
	union := (a.x2-a.x1)*(a.y2-a.y1) + (b.x2-b.x1)*(b.y2-b.y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

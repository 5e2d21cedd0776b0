package modules

import (
	"math"
	"sort"

	"github.com/spatialmodel/chm"
)

// sortedFace pairs a face with a routing sort key (elevation plus
// whatever sits on top of it that should count toward elevation for
// ordering purposes). Both snow_slide and snowdrift route mass
// downhill in this highest-to-lowest order, so a face that receives
// mass this tick can itself shed it later in the same pass.
type sortedFace struct {
	zKey float64
	face *chm.Face
}

// sortFacesDescending sorts faces from highest to lowest zKey,
// breaking ties by face ID for determinism.
func sortFacesDescending(faces []sortedFace) {
	sort.SliceStable(faces, func(i, j int) bool {
		if faces[i].zKey != faces[j].zKey {
			return faces[i].zKey > faces[j].zKey
		}
		return faces[i].face.ID() < faces[j].face.ID()
	})
}

// downhillWeights weighs each of a face's up-to-three neighbours by
// how much lower its zKey (via neighborZKey) is than the face's own
// zSelf, following snow_slide's avalanche-routing weights. edge is
// true if any side of the face has no interior neighbour, meaning
// whatever is routed off that side leaves the mesh rather than
// reaching another face.
func downhillWeights(f *chm.Face, zSelf float64, neighborZKey func(nb *chm.Face) float64) (w [3]float64, edge bool) {
	for i := 0; i < 3; i++ {
		nb := f.Neighbor(i)
		if nb != nil && !nb.Ghost {
			w[i] = math.Max(0, zSelf-neighborZKey(nb))
		} else {
			edge = true
		}
	}
	return w, edge
}

// normalizeWeights scales w in place to sum to 1 and reports whether w
// summed to zero: a local sink with no lower neighbour to route to.
func normalizeWeights(w *[3]float64) (sink bool) {
	var sum float64
	for _, v := range w {
		sum += v
	}
	if sum == 0 {
		return true
	}
	for i := range w {
		w[i] /= sum
	}
	return false
}

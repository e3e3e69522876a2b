package trainer

import (
	"math/rand"

	"github.com/adalundhe/cinesage/core/graph"
	"github.com/adalundhe/cinesage/core/model"
)

// subgraph is one minibatch's induced neighborhood with locally
// renumbered nodes: the feature rows of every sampled node, the sampled
// message edges in local indices, and the batch edges' endpoints mapped
// to local indices.
type subgraph struct {
	x     model.Matrix
	msgs  []graph.Edge
	pairs [][2]int32
}

// sampleSubgraph expands the endpoints of the batch edges (indices into
// g.Interactions) outward one hop per fanout entry, keeping at most
// fanout[h] in-neighbors per node per hop, sampled without replacement.
// Nodes reached earlier keep their local index; an already-known node
// reached again contributes its message edge but is not expanded twice.
func sampleSubgraph(g *graph.Graph, in [][]int32, batch []int, fanout []int, rng *rand.Rand) subgraph {
	local := make(map[int32]int32)
	var order []int32

	addNode := func(gid int32) (int32, bool) {
		if lid, ok := local[gid]; ok {
			return lid, false
		}
		lid := int32(len(order))
		local[gid] = lid
		order = append(order, gid)
		return lid, true
	}

	sg := subgraph{pairs: make([][2]int32, 0, len(batch))}

	var frontier []int32
	for _, ei := range batch {
		e := g.Interactions[ei]
		uLocal, uNew := addNode(e.Src)
		iLocal, iNew := addNode(e.Dst)
		if uNew {
			frontier = append(frontier, e.Src)
		}
		if iNew {
			frontier = append(frontier, e.Dst)
		}
		sg.pairs = append(sg.pairs, [2]int32{uLocal, iLocal})
	}

	for _, limit := range fanout {
		var next []int32
		for _, gid := range frontier {
			dstLocal := local[gid]
			nbrs := in[gid]
			if len(nbrs) > limit {
				picked := rng.Perm(len(nbrs))[:limit]
				for _, p := range picked {
					srcLocal, isNew := addNode(nbrs[p])
					sg.msgs = append(sg.msgs, graph.Edge{Src: srcLocal, Dst: dstLocal})
					if isNew {
						next = append(next, nbrs[p])
					}
				}
				continue
			}
			for _, nbr := range nbrs {
				srcLocal, isNew := addNode(nbr)
				sg.msgs = append(sg.msgs, graph.Edge{Src: srcLocal, Dst: dstLocal})
				if isNew {
					next = append(next, nbr)
				}
			}
		}
		frontier = next
	}

	sg.x = model.NewMatrix(len(order), g.FeatureDim)
	for lid, gid := range order {
		copy(sg.x.Row(lid), g.Feature(int(gid)))
	}
	return sg
}

package graph

import (
	"sort"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/types"
)

// RankedRef pairs a ref with its citation rank.
type RankedRef struct {
	Ref  [32]byte
	Rank float64
}

// Rank runs weighted PageRank over the citation graph. Edge weight is
// 1 + edge_sats so funded citations conduct more rank but free ones
// still count. Rank of dangling nodes redistributes uniformly.
func Rank(edges []*types.CitationEdge) map[[32]byte]float64 {
	cfg := params.KarstConfig()
	type outEdge struct {
		target [32]byte
		weight float64
	}
	outs := make(map[[32]byte][]outEdge)
	outWeight := make(map[[32]byte]float64)
	nodes := make(map[[32]byte]struct{})
	for _, e := range edges {
		w := 1 + float64(e.EdgeSats)
		outs[e.SourceNode] = append(outs[e.SourceNode], outEdge{target: e.TargetRef, weight: w})
		outWeight[e.SourceNode] += w
		nodes[e.SourceNode] = struct{}{}
		nodes[e.TargetRef] = struct{}{}
	}
	n := len(nodes)
	if n == 0 {
		return map[[32]byte]float64{}
	}

	d := cfg.PageRankDamping
	rank := make(map[[32]byte]float64, n)
	for node := range nodes {
		rank[node] = 1 / float64(n)
	}
	for i := 0; i < cfg.PageRankIterations; i++ {
		next := make(map[[32]byte]float64, n)
		dangling := 0.0
		for node, r := range rank {
			if outWeight[node] == 0 {
				dangling += r
			}
		}
		base := (1-d)/float64(n) + d*dangling/float64(n)
		for node := range nodes {
			next[node] = base
		}
		for node, r := range rank {
			total := outWeight[node]
			if total == 0 {
				continue
			}
			for _, out := range outs[node] {
				next[out.target] += d * r * out.weight / total
			}
		}
		rank = next
	}
	return rank
}

// Top returns the limit highest ranked refs, ties broken by ref bytes so
// the order is stable.
func Top(edges []*types.CitationEdge, limit int) []RankedRef {
	rank := Rank(edges)
	ranked := make([]RankedRef, 0, len(rank))
	for ref, r := range rank {
		ranked = append(ranked, RankedRef{Ref: ref, Rank: r})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Rank != ranked[j].Rank {
			return ranked[i].Rank > ranked[j].Rank
		}
		return string(ranked[i].Ref[:]) < string(ranked[j].Ref[:])
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

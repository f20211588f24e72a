package materializer

import (
	"context"

	"github.com/karstnet/karst/coordinator/core/graph"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	"go.opencensus.io/trace"
)

// GraphEdge is one citation edge shaped for JSON clients.
type GraphEdge struct {
	SourceEvent string `json:"source_event"`
	SourceNode  string `json:"source_node"`
	TargetRef   string `json:"target_ref"`
	Sats        int64  `json:"sats"`
	Kind        int64  `json:"kind"`
}

// GraphView holds the citations touching one node of the graph:
// incoming edges cite the ref, outgoing edges were made by it. The counts
// come from the maintained degree counters, not the returned slices.
type GraphView struct {
	Ref           string       `json:"ref"`
	IncomingCount uint64       `json:"incoming_count"`
	OutgoingCount uint64       `json:"outgoing_count"`
	Incoming      []*GraphEdge `json:"incoming"`
	Outgoing      []*GraphEdge `json:"outgoing"`
}

// RankedEntry is one PageRank result row.
type RankedEntry struct {
	Ref  string  `json:"ref"`
	Rank float64 `json:"rank"`
}

// Graph returns both edge directions for a ref.
func (s *Service) Graph(ctx context.Context, ref [32]byte) (*GraphView, error) {
	ctx, span := trace.StartSpan(ctx, "materializer.Graph")
	defer span.End()
	incoming, err := s.cfg.DB.EdgesTo(ctx, ref)
	if err != nil {
		return nil, err
	}
	outgoing, err := s.cfg.DB.EdgesFrom(ctx, ref)
	if err != nil {
		return nil, err
	}
	out, in, err := s.cfg.DB.EdgeCounts(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &GraphView{
		Ref:           bytesutil.EncodeHex(ref[:]),
		IncomingCount: in,
		OutgoingCount: out,
		Incoming:      graphEdgesFor(incoming),
		Outgoing:      graphEdgesFor(outgoing),
	}, nil
}

// TopRefs ranks the citation graph with weighted PageRank and returns
// the highest ranked refs.
func (s *Service) TopRefs(ctx context.Context, limit int) ([]*RankedEntry, error) {
	ctx, span := trace.StartSpan(ctx, "materializer.TopRefs")
	defer span.End()
	edges, err := s.cfg.DB.AllEdges(ctx)
	if err != nil {
		return nil, err
	}
	ranked := graph.Top(edges, clampLimit(limit))
	entries := make([]*RankedEntry, 0, len(ranked))
	for _, r := range ranked {
		entries = append(entries, &RankedEntry{
			Ref:  bytesutil.EncodeHex(r.Ref[:]),
			Rank: r.Rank,
		})
	}
	return entries, nil
}

func graphEdgesFor(edges []*types.CitationEdge) []*GraphEdge {
	out := make([]*GraphEdge, 0, len(edges))
	for _, e := range edges {
		out = append(out, &GraphEdge{
			SourceEvent: bytesutil.EncodeHex(e.SourceEvent[:]),
			SourceNode:  bytesutil.EncodeHex(e.SourceNode[:]),
			TargetRef:   bytesutil.EncodeHex(e.TargetRef[:]),
			Sats:        e.EdgeSats,
			Kind:        int64(e.Kind),
		})
	}
	return out
}

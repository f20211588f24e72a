// Package graph derives the citation graph from the event log. Inline
// [ref:...] citations and LIST items become edges that conduct funding
// and feed the ranking of refs.
package graph

import (
	"regexp"

	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/protocol"
)

// refPattern matches inline citations of the form [ref:<64 hex chars>].
// CBOR stores text verbatim, so scanning the raw body finds citations in
// any payload without decoding it.
var refPattern = regexp.MustCompile(`\[ref:([0-9a-fA-F]{64})\]`)

// ExtractEdges derives the citation edges of an event: inline citations
// anywhere in the body plus the items of a LIST payload, deduplicated.
// The event's sats split evenly across the targets, floored per edge.
// The source node is the event's ref, or the event id itself when the
// event references nothing.
func ExtractEdges(ev *protocol.Event, id [32]byte) []*types.CitationEdge {
	var targets [][32]byte
	seen := make(map[[32]byte]struct{})
	add := func(t [32]byte) {
		if t == protocol.ZeroRef {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		targets = append(targets, t)
	}
	for _, m := range refPattern.FindAllSubmatch(ev.Body, -1) {
		target, err := bytesutil.DecodeHex32(string(m[1]))
		if err != nil {
			continue
		}
		add(target)
	}
	if ev.Kind == protocol.KindList {
		if payload, err := protocol.DecodeListPayload(ev.Body); err == nil {
			for _, item := range payload.Items {
				add(bytesutil.ToBytes32(item))
			}
		}
	}
	if len(targets) == 0 {
		return nil
	}
	node := ev.Ref
	if node == protocol.ZeroRef {
		node = id
	}
	edgeSats := ev.Sats / int64(len(targets))
	edges := make([]*types.CitationEdge, 0, len(targets))
	for _, target := range targets {
		edges = append(edges, &types.CitationEdge{
			SourceEvent: id,
			SourceNode:  node,
			TargetRef:   target,
			EdgeSats:    edgeSats,
			Kind:        ev.Kind,
		})
	}
	return edges
}

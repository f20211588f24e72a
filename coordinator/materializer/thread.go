package materializer

import (
	"context"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/db/filters"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/protocol"
	"go.opencensus.io/trace"
)

// ThreadNode is one event in a reply tree. Text is set for posts whose
// payload decodes, and Replies holds direct children newest first.
type ThreadNode struct {
	EventID string        `json:"event_id"`
	From    string        `json:"from"`
	TS      int64         `json:"ts"`
	Sats    int64         `json:"sats"`
	Text    string        `json:"text,omitempty"`
	Replies []*ThreadNode `json:"replies"`
}

// Thread builds the reply tree rooted at the given event. Replies are
// post events whose ref is the parent event id. Traversal is breadth
// first and stops at the configured depth and reply caps, so a hot
// thread truncates instead of unbounding the response.
func (s *Service) Thread(ctx context.Context, rootID [32]byte) (*ThreadNode, error) {
	ctx, span := trace.StartSpan(ctx, "materializer.Thread")
	defer span.End()
	cfg := params.KarstConfig()
	logged, err := s.cfg.DB.Event(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if logged == nil {
		return nil, ErrNotFound
	}
	root := threadNodeFor(logged)

	type frame struct {
		node  *ThreadNode
		id    [32]byte
		depth int
	}
	queue := []frame{{node: root, id: rootID, depth: 0}}
	total := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= cfg.ThreadMaxDepth || total >= cfg.ThreadMaxReplies {
			continue
		}
		f := filters.NewFilter().SetRef(cur.id).SetKind(protocol.KindPost)
		children, err := s.cfg.DB.Events(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if total >= cfg.ThreadMaxReplies {
				break
			}
			total++
			node := threadNodeFor(child)
			cur.node.Replies = append(cur.node.Replies, node)
			queue = append(queue, frame{node: node, id: child.ID, depth: cur.depth + 1})
		}
	}
	return root, nil
}

func threadNodeFor(ev *types.LoggedEvent) *ThreadNode {
	node := &ThreadNode{
		EventID: bytesutil.EncodeHex(ev.ID[:]),
		From:    bytesutil.EncodeHex(ev.Event.From[:]),
		TS:      ev.Event.TS,
		Sats:    ev.Event.Sats,
		Replies: []*ThreadNode{},
	}
	if ev.Event.Kind == protocol.KindPost {
		if body, err := protocol.DecodePostPayload(ev.Event.Body); err == nil {
			node.Text = body.Text
		}
	}
	return node
}

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

// Announcement is a decoded ANNOUNCE event shaped for JSON clients.
// Metadata is nil when the payload does not decode.
type Announcement struct {
	EventID  string                    `json:"event_id"`
	Ref      string                    `json:"ref"`
	From     string                    `json:"from"`
	TS       int64                     `json:"ts"`
	Sats     int64                     `json:"sats"`
	Metadata *protocol.AnnouncePayload `json:"metadata,omitempty"`
}

// FundedEntry pairs a bounty pool with the newest announce for its ref.
type FundedEntry struct {
	Ref         string        `json:"ref"`
	Balance     int64         `json:"balance"`
	TotalTipped int64         `json:"total_tipped"`
	Announce    *Announcement `json:"announce,omitempty"`
}

// FundedFeed lists pools holding at least minBalance sats, richest
// first, each enriched with the most recent announce metadata for its
// ref when one exists.
func (s *Service) FundedFeed(ctx context.Context, minBalance int64, limit int) ([]*FundedEntry, error) {
	ctx, span := trace.StartSpan(ctx, "materializer.FundedFeed")
	defer span.End()
	pools, err := s.cfg.DB.Pools(ctx, minBalance, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	entries := make([]*FundedEntry, 0, len(pools))
	for _, pool := range pools {
		ann, err := s.latestAnnounce(ctx, pool.Key)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &FundedEntry{
			Ref:         bytesutil.EncodeHex(pool.Key[:]),
			Balance:     pool.Balance,
			TotalTipped: pool.TotalTipped,
			Announce:    ann,
		})
	}
	return entries, nil
}

// RecentFeed pages through announce events newest first. A non empty
// tag keeps only announces carrying that tag. Announces whose payload
// does not decode are dropped from the feed.
func (s *Service) RecentFeed(ctx context.Context, limit, offset int, tag string) ([]*Announcement, error) {
	ctx, span := trace.StartSpan(ctx, "materializer.RecentFeed")
	defer span.End()
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	f := filters.NewFilter().SetKind(protocol.KindAnnounce)
	if tag == "" {
		// Pagination pushes down to the store when no tag filter
		// applies.
		f.SetLimit(limit).SetOffset(offset)
		offset = 0
	}
	logged, err := s.cfg.DB.Events(ctx, f)
	if err != nil {
		return nil, err
	}
	feed := make([]*Announcement, 0, limit)
	for _, ev := range logged {
		ann := announcementFor(ev)
		if ann.Metadata == nil {
			continue
		}
		if tag != "" && !hasTag(ann.Metadata.Tags, tag) {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		feed = append(feed, ann)
		if len(feed) == limit {
			break
		}
	}
	return feed, nil
}

// latestAnnounce resolves the newest announce event for a ref, serving
// repeat lookups from the LRU cache. Only hits are cached so a ref
// announced after a miss shows up immediately.
func (s *Service) latestAnnounce(ctx context.Context, ref [32]byte) (*Announcement, error) {
	if cached, ok := s.announceCache.Get(ref); ok {
		announceCacheHits.Inc()
		return cached.(*Announcement), nil
	}
	announceCacheMisses.Inc()
	f := filters.NewFilter().SetRef(ref).SetKind(protocol.KindAnnounce).SetLimit(1)
	logged, err := s.cfg.DB.Events(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(logged) == 0 {
		return nil, nil
	}
	ann := announcementFor(logged[0])
	s.announceCache.Add(ref, ann)
	announceCacheSize.Set(float64(s.announceCache.Len()))
	return ann, nil
}

func announcementFor(ev *types.LoggedEvent) *Announcement {
	ann := &Announcement{
		EventID: bytesutil.EncodeHex(ev.ID[:]),
		Ref:     bytesutil.EncodeHex(ev.Event.Ref[:]),
		From:    bytesutil.EncodeHex(ev.Event.From[:]),
		TS:      ev.Event.TS,
		Sats:    ev.Event.Sats,
	}
	meta, err := protocol.DecodeAnnouncePayload(ev.Event.Body)
	if err != nil {
		log.WithField("eventID", ann.EventID).Debug("Announce payload did not decode")
		return ann
	}
	ann.Metadata = meta
	return ann
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// clampLimit folds a client supplied page size into the configured
// bounds. Zero or negative asks for the default page.
func clampLimit(limit int) int {
	cfg := params.KarstConfig()
	if limit <= 0 {
		return cfg.DefaultPageSize
	}
	if limit > cfg.MaxPageSize {
		return cfg.MaxPageSize
	}
	return limit
}

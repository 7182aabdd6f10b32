package aggregator

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/Clark-Hu/rating-disputes/internal/domain"
)

// Flags are local read/disputed flips not yet confirmed by the server.
type Flags struct {
	Read     bool
	Disputed bool
}

// Normalize fills in what a source left out. A missing type defaults by
// stream, a missing id is derived from the content, and a missing createdAt
// becomes now. defaulted reports whether createdAt was filled in.
func Normalize(raw domain.RawNotification, stream domain.Stream, now time.Time) (n domain.Notification, defaulted bool) {
	n = domain.Notification{
		ID:           raw.ID,
		RecipientRef: raw.RecipientRef,
		Type:         domain.NotificationType(raw.Type),
		Message:      raw.Message,
		Data:         raw.Data,
		Read:         raw.Read,
		Disputed:     raw.Disputed,
	}
	if n.Type == "" {
		if stream == domain.StreamRating {
			n.Type = domain.TypeNewRating
		} else {
			n.Type = domain.TypeSystem
		}
	}
	if n.ID == "" {
		n.ID = DeriveID(raw, stream)
	}
	if raw.CreatedAt != nil && !raw.CreatedAt.IsZero() {
		n.CreatedAt = raw.CreatedAt.UTC()
	} else {
		n.CreatedAt = now.UTC()
		defaulted = true
	}
	return n, defaulted
}

// DeriveID builds a stable id for an item the source sent without one.
func DeriveID(raw domain.RawNotification, stream domain.Stream) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(string(stream))
	write(raw.Type)
	write(raw.RecipientRef)
	write(raw.Message)
	h.Write(raw.Data)
	h.Write([]byte{0})
	if raw.CreatedAt != nil {
		write(raw.CreatedAt.UTC().Format(time.RFC3339Nano))
	}
	return "derived-" + hex.EncodeToString(h.Sum(nil))[:24]
}

// Merge combines streams into one feed ordered newest first. An id seen
// twice keeps its first occurrence. Equal timestamps keep input order.
func Merge(streams ...[]domain.Notification) []domain.Notification {
	total := 0
	for _, s := range streams {
		total += len(s)
	}
	out := make([]domain.Notification, 0, total)
	seen := make(map[string]struct{}, total)
	for _, s := range streams {
		for _, n := range s {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Reconcile applies pending local flips to a freshly fetched feed. The
// server wins once it reports a flag as set; until then the local flip is
// kept. Pending entries for items no longer in the feed are dropped.
func Reconcile(fetched []domain.Notification, pending map[string]Flags) ([]domain.Notification, map[string]Flags) {
	out := make([]domain.Notification, len(fetched))
	copy(out, fetched)
	still := make(map[string]Flags, len(pending))
	for i := range out {
		p, ok := pending[out[i].ID]
		if !ok {
			continue
		}
		var keep Flags
		if p.Read && !out[i].Read {
			out[i].Read = true
			keep.Read = true
		}
		if p.Disputed && !out[i].Disputed {
			out[i].Disputed = true
			keep.Disputed = true
		}
		if keep.Read || keep.Disputed {
			still[out[i].ID] = keep
		}
	}
	return out, still
}

// CountUnread returns the number of unread items.
func CountUnread(feed []domain.Notification) int {
	n := 0
	for _, item := range feed {
		if !item.Read {
			n++
		}
	}
	return n
}

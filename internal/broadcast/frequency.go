package broadcast

import (
	"context"
	"time"

	"whatsapp-crm/internal/models"

	"go.uber.org/zap"
)

// ContactedLookup reports which of the given contacts were touched by a
// campaign or a message at or after the cutoff.
type ContactedLookup interface {
	ContactIDsContactedSince(ctx context.Context, ids []uint, cutoff time.Time) (map[uint]bool, error)
}

// Partition splits a recipient set into allowed and blocked. The two slices
// are disjoint and together cover the input set.
type Partition struct {
	Allowed []models.Contact
	Blocked []models.Contact
}

// FrequencyGuard blocks recipients contacted within the lookback window,
// preventing over-messaging across campaigns.
type FrequencyGuard struct {
	store  ContactedLookup
	logger *zap.Logger
}

func NewFrequencyGuard(store ContactedLookup, logger *zap.Logger) *FrequencyGuard {
	return &FrequencyGuard{store: store, logger: logger}
}

// Check partitions recipients by last-contacted timestamp. The cutoff is
// computed once per invocation. windowHours <= 0 disables the guard and
// returns everything as allowed. A lookup failure fails open: blocking a
// whole campaign on a storage error is worse than the odd early re-send,
// so the error is logged and all recipients pass.
func (g *FrequencyGuard) Check(ctx context.Context, recipients []models.Contact, windowHours int) Partition {
	if windowHours <= 0 || len(recipients) == 0 {
		return Partition{Allowed: recipients}
	}

	cutoff := time.Now().Add(-time.Duration(windowHours) * time.Hour)
	ids := make([]uint, len(recipients))
	for i, r := range recipients {
		ids[i] = r.ID
	}

	contacted, err := g.store.ContactIDsContactedSince(ctx, ids, cutoff)
	if err != nil {
		g.logger.Warn("frequency lookup failed, failing open",
			zap.Error(err),
			zap.Int("recipients", len(recipients)),
			zap.Int("window_hours", windowHours))
		return Partition{Allowed: recipients}
	}

	var p Partition
	for _, r := range recipients {
		if contacted[r.ID] {
			p.Blocked = append(p.Blocked, r)
		} else {
			p.Allowed = append(p.Allowed, r)
		}
	}
	return p
}

package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"whatsapp-crm/internal/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeLookup struct {
	err       error
	lastSeen  map[uint]time.Time
	gotCutoff time.Time
}

func (f *fakeLookup) ContactIDsContactedSince(_ context.Context, ids []uint, cutoff time.Time) (map[uint]bool, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gotCutoff = cutoff
	out := make(map[uint]bool)
	for _, id := range ids {
		if at, ok := f.lastSeen[id]; ok && !at.Before(cutoff) {
			out[id] = true
		}
	}
	return out, nil
}

func contacts(ids ...uint) []models.Contact {
	out := make([]models.Contact, len(ids))
	for i, id := range ids {
		out[i] = models.Contact{ID: id}
	}
	return out
}

func TestFrequencyGuardPartitionIsComplete(t *testing.T) {
	lookup := &fakeLookup{lastSeen: map[uint]time.Time{
		2: time.Now().Add(-2 * time.Hour),
		4: time.Now().Add(-30 * time.Hour),
	}}
	guard := NewFrequencyGuard(lookup, zap.NewNop())

	recipients := contacts(1, 2, 3, 4)
	p := guard.Check(context.Background(), recipients, 24)

	assert.Len(t, p.Allowed, 3)
	assert.Len(t, p.Blocked, 1)
	assert.Equal(t, uint(2), p.Blocked[0].ID)

	// allowed ∪ blocked == recipients, disjoint
	seen := make(map[uint]int)
	for _, c := range append(p.Allowed, p.Blocked...) {
		seen[c.ID]++
	}
	assert.Len(t, seen, len(recipients))
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
}

func TestFrequencyGuardWindowScenarios(t *testing.T) {
	lookup := &fakeLookup{lastSeen: map[uint]time.Time{
		1: time.Now().Add(-2 * time.Hour), // lastCampaignAt = now - 2h
	}}
	guard := NewFrequencyGuard(lookup, zap.NewNop())

	p := guard.Check(context.Background(), contacts(1), 24)
	assert.Len(t, p.Blocked, 1, "2h ago inside a 24h window blocks")

	p = guard.Check(context.Background(), contacts(1), 1)
	assert.Len(t, p.Allowed, 1, "2h ago outside a 1h window allows")
}

func TestFrequencyGuardZeroWindowIsIdentity(t *testing.T) {
	guard := NewFrequencyGuard(&fakeLookup{err: errors.New("must not be called")}, zap.NewNop())

	recipients := contacts(1, 2)
	p := guard.Check(context.Background(), recipients, 0)
	assert.Equal(t, recipients, p.Allowed)
	assert.Empty(t, p.Blocked)
}

func TestFrequencyGuardFailsOpenOnLookupError(t *testing.T) {
	guard := NewFrequencyGuard(&fakeLookup{err: errors.New("store unavailable")}, zap.NewNop())

	recipients := contacts(1, 2, 3)
	p := guard.Check(context.Background(), recipients, 24)
	assert.Equal(t, recipients, p.Allowed)
	assert.Empty(t, p.Blocked)
}

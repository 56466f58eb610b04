// Package partition splits the alarm set into disjoint subsets, one per live evaluator.
package partition

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

var ErrNoMembers = errors.New("no partition members known")

type Coordinator struct {
	membership Membership
	memberID   string
	ttl        time.Duration

	mu          sync.Mutex
	lastMembers []string
}

type CoordinatorConfig struct {
	// Membership nil disables partitioning: this instance owns every alarm.
	Membership Membership
	MemberID   string
	TTL        time.Duration
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.MemberID == "" {
		cfg.MemberID = models.NewUUID()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}

	return &Coordinator{
		membership: cfg.Membership,
		memberID:   cfg.MemberID,
		ttl:        cfg.TTL,
	}
}

func (c *Coordinator) MemberID() string {
	return c.memberID
}

// Assign heartbeats this member and keeps the alarms it owns, preserving order.
// When membership cannot be read the last known member list is reused.
func (c *Coordinator) Assign(ctx context.Context, alarms []*models.Alarm) ([]*models.Alarm, error) {
	if c.membership == nil {
		return alarms, nil
	}

	members, err := c.members(ctx)
	if err != nil {
		return nil, err
	}

	owned := make([]*models.Alarm, 0, len(alarms)/len(members)+1)
	for _, alarm := range alarms {
		if Owner(alarm.ID, members) == c.memberID {
			owned = append(owned, alarm)
		}
	}

	logger.Debugf("Member %s owns %d of %d alarms across %d members",
		c.memberID, len(owned), len(alarms), len(members))

	return owned, nil
}

func (c *Coordinator) members(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.membership.Heartbeat(ctx, c.memberID, c.ttl); err != nil {
		logger.Warnf("Partition heartbeat failed: %v", err)
	}

	members, err := c.membership.Members(ctx)
	if err != nil {
		if len(c.lastMembers) == 0 {
			return nil, fmt.Errorf("%w: %v", ErrNoMembers, err)
		}
		logger.Warnf("Partition membership unavailable, reusing %d known members: %v", len(c.lastMembers), err)
		return c.lastMembers, nil
	}

	members = withMember(members, c.memberID)
	c.lastMembers = members
	return members, nil
}

// Leave removes this member so the others take over its alarms on their next cycle.
func (c *Coordinator) Leave(ctx context.Context) error {
	if c.membership == nil {
		return nil
	}
	return c.membership.Leave(ctx, c.memberID)
}

// Owner picks the member responsible for an alarm: FNV-1a of the id modulo the
// sorted member count. members must be sorted and non-empty.
func Owner(alarmID string, members []string) string {
	h := fnv.New32a()
	h.Write([]byte(alarmID))
	return members[h.Sum32()%uint32(len(members))]
}

func withMember(members []string, id string) []string {
	i := sort.SearchStrings(members, id)
	if i < len(members) && members[i] == id {
		return members
	}
	out := make([]string, 0, len(members)+1)
	out = append(out, members[:i]...)
	out = append(out, id)
	return append(out, members[i:]...)
}

// Package tiers computes a user's quality-of-service tier from role
// membership across every server the bot is in.
package tiers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nextlevelbuilder/crosschat/internal/platform"
	"github.com/nextlevelbuilder/crosschat/internal/store"
)

// Tier is the quality-of-service class for a user.
type Tier int

const (
	Standard Tier = iota
	Partner
	Architect
	Elite
	Staff
	Founder
)

func (t Tier) String() string {
	switch t {
	case Founder:
		return "Founder"
	case Staff:
		return "Staff"
	case Elite:
		return "Elite"
	case Architect:
		return "Architect"
	case Partner:
		return "Partner"
	default:
		return "Standard"
	}
}

// Scheduler priorities; lower is faster.
const (
	PriorityElite    = 10
	PriorityArchitect = 25
	PriorityPartner  = 75
	PriorityStandard = 100
)

// Embed colors per tier.
const (
	ColorFounder   = 0xDC143C // crimson
	ColorStaff     = 0x9B59B6 // purple
	ColorElite     = 0xE67E22 // orange
	ColorArchitect = 0xFFD700 // gold
	ColorPartner   = 0x1ABC9C // teal
	ColorStandard  = 0x3498DB // blue
)

// Info is the resolved tier with its scheduler and rendering attributes.
type Info struct {
	Tier     Tier
	Priority int
	TagName  string
	TagLevel int
	VIP      bool
	Color    int
}

// Roles identify the configured special roles.
type Roles struct {
	OwnerID         string
	StaffRoleID     string
	EliteRoleID     string
	ArchitectRoleID string
}

const (
	roleCacheSize = 8192
	roleCacheTTL  = time.Minute
)

// Resolver scans role membership across guilds. Scans are cached briefly:
// role changes are rare next to message volume.
type Resolver struct {
	client   platform.Client
	partners store.PartnerStore
	roles    Roles
	cache    *expirable.LRU[string, roleScan]
}

type roleScan struct {
	staff     bool
	elite     bool
	architect bool
}

// NewResolver creates a tier resolver.
func NewResolver(client platform.Client, partners store.PartnerStore, roles Roles) *Resolver {
	return &Resolver{
		client:   client,
		partners: partners,
		roles:    roles,
		cache:    expirable.NewLRU[string, roleScan](roleCacheSize, nil, roleCacheTTL),
	}
}

// Resolve computes the tier for a user posting from sourceServerID.
// Precedence: Founder > Staff > Elite > Architect > Partner > Standard,
// with Elite beating Architect when both VIP roles are held.
func (r *Resolver) Resolve(ctx context.Context, userID, sourceServerID string) (Info, error) {
	if userID == r.roles.OwnerID {
		return Info{Tier: Founder, Priority: PriorityElite, TagName: "FOUNDER", TagLevel: 0, VIP: true, Color: ColorFounder}, nil
	}

	scan, err := r.scanRoles(ctx, userID)
	if err != nil {
		return Info{}, err
	}

	switch {
	case scan.staff:
		info := Info{Tier: Staff, TagName: "STAFF", TagLevel: 1, Color: ColorStaff}
		switch {
		case scan.elite:
			info.Priority = PriorityElite
			info.VIP = true
		case scan.architect:
			info.Priority = PriorityArchitect
			info.VIP = true
		default:
			info.Priority = PriorityStandard
		}
		return info, nil
	case scan.elite:
		return Info{Tier: Elite, Priority: PriorityElite, TagName: "ELITE", TagLevel: 2, VIP: true, Color: ColorElite}, nil
	case scan.architect:
		return Info{Tier: Architect, Priority: PriorityArchitect, TagName: "ARCHITECT", TagLevel: 3, VIP: true, Color: ColorArchitect}, nil
	}

	if _, err := r.partners.Get(ctx, sourceServerID); err == nil {
		return Info{Tier: Partner, Priority: PriorityPartner, TagName: "PARTNER", TagLevel: 4, Color: ColorPartner}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return Info{}, fmt.Errorf("partner lookup: %w", err)
	}

	return Info{Tier: Standard, Priority: PriorityStandard, TagName: "MEMBER", TagLevel: 5, Color: ColorStandard}, nil
}

func (r *Resolver) scanRoles(ctx context.Context, userID string) (roleScan, error) {
	if scan, ok := r.cache.Get(userID); ok {
		return scan, nil
	}

	var scan roleScan
	for _, guildID := range r.client.GuildIDs() {
		roleIDs, err := r.client.MemberRoles(ctx, guildID, userID)
		if errors.Is(err, platform.ErrNoMember) {
			continue
		}
		if err != nil {
			return roleScan{}, fmt.Errorf("scan roles in guild %s: %w", guildID, err)
		}
		for _, id := range roleIDs {
			switch id {
			case r.roles.StaffRoleID:
				scan.staff = true
			case r.roles.EliteRoleID:
				scan.elite = true
			case r.roles.ArchitectRoleID:
				scan.architect = true
			}
		}
		if scan.staff && scan.elite && scan.architect {
			break
		}
	}

	r.cache.Add(userID, scan)
	return scan, nil
}

// Invalidate drops a user's cached role scan (e.g. after a role update event).
func (r *Resolver) Invalidate(userID string) {
	r.cache.Remove(userID)
}

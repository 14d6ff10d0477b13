package model

import "time"

// Membership types as stored by the OCS server.
const (
	MembershipAutomatic = 0
	MembershipManual    = 1
	MembershipNever     = 2
)

type Group struct {
	ID                  int64      `db:"id" json:"id"`
	Name                string     `db:"name" json:"name"`
	Description         string     `db:"description" json:"description"`
	Criteria            string     `db:"criteria" json:"criteria"`
	CreationDate        time.Time  `db:"creation_date" json:"creationDate"`
	CacheCreationDate   *time.Time `db:"cache_creation_date" json:"cacheCreationDate"`
	CacheExpirationDate *time.Time `db:"cache_expiration_date" json:"cacheExpirationDate"`
}

type GroupMembership struct {
	ClientID       int64  `db:"client_id" json:"clientId"`
	GroupID        int64  `db:"group_id" json:"groupId"`
	GroupName      string `db:"group_name" json:"groupName,omitempty"`
	MembershipType int    `db:"membership_type" json:"membershipType"`
}

// IsStatic reports whether the membership was set by an operator rather
// than computed from the group criteria.
func (m GroupMembership) IsStatic() bool {
	return m.MembershipType == MembershipManual || m.MembershipType == MembershipNever
}

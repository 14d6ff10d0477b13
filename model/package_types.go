package model

import "time"

// Assignment states.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

type Package struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Comment         string    `db:"comment" json:"comment"`
	Platform        string    `db:"platform" json:"platform"`
	Action          string    `db:"action" json:"action"`
	ActionParam     string    `db:"action_param" json:"actionParam"`
	Priority        int       `db:"priority" json:"priority"`
	Fragments       int       `db:"fragments" json:"fragments"`
	Size            int64     `db:"size" json:"size"`
	Hash            string    `db:"hash" json:"hash"`
	Warn            bool      `db:"warn" json:"warn"`
	WarnMessage     string    `db:"warn_message" json:"warnMessage"`
	WarnCountdown   int       `db:"warn_countdown" json:"warnCountdown"`
	WarnAllowAbort  bool      `db:"warn_allow_abort" json:"warnAllowAbort"`
	WarnAllowDelay  bool      `db:"warn_allow_delay" json:"warnAllowDelay"`
	PostInstMessage string    `db:"post_inst_message" json:"postInstMessage"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

type PackageAssignment struct {
	ClientID    int64     `db:"client_id" json:"clientId"`
	PackageID   int64     `db:"package_id" json:"packageId"`
	PackageName string    `db:"package_name" json:"packageName,omitempty"`
	Status      string    `db:"status" json:"status"`
	AssignedAt  time.Time `db:"assigned_at" json:"assignedAt"`
}

// GroupPackageAssignment assigns a package to every member of a group.
type GroupPackageAssignment struct {
	GroupID     int64     `db:"group_id" json:"groupId"`
	PackageID   int64     `db:"package_id" json:"packageId"`
	PackageName string    `db:"package_name" json:"packageName,omitempty"`
	AssignedAt  time.Time `db:"assigned_at" json:"assignedAt"`
}

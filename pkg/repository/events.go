package repository

import (
	"time"

	"github.com/dmitrymomot/flagsync/pkg/feature"
)

// Source tells where an installed flag set came from.
type Source string

const (
	SourceSync     Source = "sync"
	SourceSnapshot Source = "snapshot"
)

// ChangeEvent describes one replacement of the active flag set.
type ChangeEvent struct {
	Source    Source
	Changes   feature.Changes
	UpdatedAt time.Time
}

const subscriberBuffer = 8

// Package domain contains the aggregator's change-notification types.
package domain

import (
	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
)

// ChangeType discriminates store notifications.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeUpdate ChangeType = "update"
	ChangeRemove ChangeType = "remove"
)

// Change is one store mutation delivered to listeners.
type Change struct {
	Type  ChangeType
	State dexdomain.VenueState
}

// Listener consumes store changes synchronously on the writer's thread.
type Listener func(change Change)

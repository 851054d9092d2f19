// Package domain contains the watcher's core types: blocks, pipeline
// states, and the application events a watcher emits.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Block is a chain head observation.
type Block struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  time.Time
	BaseFee    *big.Int
	ReceivedAt time.Time
}

// PipelineState is the watcher pipeline's lifecycle state.
type PipelineState string

const (
	PipelineInit       PipelineState = "init"
	PipelineListening  PipelineState = "listening"
	PipelineRecovering PipelineState = "recovering"
	PipelineTerminated PipelineState = "terminated"
)

// ConnectionHealth grades block-feed liveness.
type ConnectionHealth string

const (
	HealthOK       ConnectionHealth = "ok"
	HealthDegraded ConnectionHealth = "degraded" // no block for > 30s
	HealthDead     ConnectionHealth = "dead"     // no block for > 60s
)

// Liveness thresholds for the block feed.
const (
	DegradedAfter = 30 * time.Second
	DeadAfter     = 60 * time.Second
)

// AppEventName names the application events a watcher broadcasts.
type AppEventName string

const (
	AppWorkerInitialized AppEventName = "worker-initialized"
	AppNewBlock          AppEventName = "newBlock"
	AppPoolUpdateBatch   AppEventName = "pool-update-batch"
	AppReorgDetected     AppEventName = "reorg-detected"
	AppPoolStatesUpdated AppEventName = "pool-states-updated"
)

package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeResultID computes a deterministic result_id using SHA256.
// Formula: SHA256(run_id|strategy_id|token|signal_index|entry_timestamp)
// Returns hex-encoded hash (64 characters).
func ComputeResultID(
	runID string,
	strategyID string,
	token string,
	signalIndex int,
	entryTimestamp int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d",
		runID,
		strategyID,
		token,
		signalIndex,
		entryTimestamp,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeSeriesKey computes a deterministic storage key for a bar series.
// Formula: SHA256(network|pool), first 16 hex characters.
func ComputeSeriesKey(network, pool string) string {
	hash := sha256.Sum256([]byte(network + "|" + pool))
	return hex.EncodeToString(hash[:8])
}

// Package data publishes the current dataset index to request handlers.
// A reload builds a complete new index and swaps it in atomically, so
// in-flight lookups keep the snapshot they started with.
package data

import (
	"sync/atomic"
	"time"

	"github.com/giygas/agrisafe-api/dataset"
	"github.com/giygas/agrisafe-api/interfaces"
	"github.com/giygas/agrisafe-api/logging"
)

// Compile-time check to ensure DataContainer implements DataStore
var _ interfaces.DataStore = (*DataContainer)(nil)

// DataContainer holds the live index behind an atomic pointer
type DataContainer struct {
	index           atomic.Pointer[dataset.Index]
	lastUpdated     atomic.Value // time.Time
	lastFailure     atomic.Pointer[interfaces.ReloadFailure]
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewDataContainer creates an empty container. GetIndex returns nil until
// the first UpdateIndex.
func NewDataContainer() *DataContainer {
	dc := &DataContainer{}
	dc.lastUpdated.Store(time.Time{})
	dc.serverStartTime.Store(time.Time{})
	return dc
}

// GetIndex returns the current snapshot, or nil before the first load
func (dc *DataContainer) GetIndex() *dataset.Index {
	return dc.index.Load()
}

// IsReady reports whether an index has been published
func (dc *DataContainer) IsReady() bool {
	return dc.index.Load() != nil
}

// UpdateIndex atomically replaces the live index and clears any recorded
// reload failure. A nil index is ignored.
func (dc *DataContainer) UpdateIndex(idx *dataset.Index) {
	if idx == nil {
		logging.Warn("Refusing to publish a nil dataset index")
		return
	}
	dc.index.Store(idx)
	dc.lastUpdated.Store(time.Now())
	dc.lastFailure.Store(nil)
}

// RecordReloadFailure keeps err for the health report; the live index is untouched
func (dc *DataContainer) RecordReloadFailure(err error) {
	if err == nil {
		return
	}
	dc.lastFailure.Store(&interfaces.ReloadFailure{Err: err, At: time.Now()})
}

// LastReloadFailure returns the most recent failed reload since the last
// successful one, or nil.
func (dc *DataContainer) LastReloadFailure() *interfaces.ReloadFailure {
	return dc.lastFailure.Load()
}

// GetLastUpdated returns the timestamp of the last data update
func (dc *DataContainer) GetLastUpdated() time.Time {
	if v := dc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true if a data update is currently in progress
func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

// SetServerStartTime sets the server start time
func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (dc *DataContainer) GetServerStartTime() time.Time {
	if v := dc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// BeginUpdate marks the start of a data update operation
// Returns true if update can proceed, false if another update is in progress
func (dc *DataContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a data update operation
func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}

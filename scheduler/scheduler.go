// Package scheduler reloads the dataset at fixed times of day and watches
// for stale data. A failed reload keeps the previous index live.
package scheduler

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/giygas/agrisafe-api/interfaces"
	"github.com/giygas/agrisafe-api/logging"
	"github.com/giygas/agrisafe-api/metrics"
	"github.com/go-co-op/gocron"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// DefaultReloadTimes are used when no times are configured
var DefaultReloadTimes = []string{"06:00", "18:00"}

const healthCheckInterval = time.Hour

// Scheduler handles dataset reloads and stale data monitoring
type Scheduler struct {
	dataStore   interfaces.DataStore
	loader      interfaces.DatasetLoader
	reloadTimes []string
	scheduler   *gocron.Scheduler

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler reloading at each HH:MM in reloadTimes
func NewScheduler(dataStore interfaces.DataStore, loader interfaces.DatasetLoader, reloadTimes []string) *Scheduler {
	if len(reloadTimes) == 0 {
		reloadTimes = DefaultReloadTimes
	}
	return &Scheduler{
		dataStore:   dataStore,
		loader:      loader,
		reloadTimes: reloadTimes,
		scheduler:   gocron.NewScheduler(time.Local),
		stop:        make(chan struct{}),
	}
}

// Start performs the initial load, then schedules the reloads. An initial
// load failure is returned so the caller can abort startup.
func (s *Scheduler) Start() error {
	if err := s.Reload(); err != nil {
		logging.Error("Failed to perform initial dataset load", "error", err)
		return fmt.Errorf("initial dataset load failed: %w", err)
	}

	_, err := s.scheduler.Every(1).Days().At(strings.Join(s.reloadTimes, ";")).Do(func() {
		if err := s.Reload(); err != nil {
			logging.Error("Scheduled dataset reload failed, keeping previous index", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule dataset reloads", "error", err)
		return fmt.Errorf("failed to schedule reloads: %w", err)
	}

	s.scheduler.StartAsync()
	s.startHealthMonitoring()

	logging.Info("Dataset reloads scheduled", "times", s.reloadTimes)
	return nil
}

// Stop stops the scheduler and the monitoring goroutine
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// NextRun returns the next scheduled reload, or the zero time before Start
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}

// Reload builds a new index from the loader and publishes it. Overlapping
// calls are skipped.
func (s *Scheduler) Reload() error {
	if !s.dataStore.BeginUpdate() {
		logging.Info("Dataset reload already in progress, skipping...")
		metrics.DatasetReloadsTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return nil
	}
	defer s.dataStore.EndUpdate()

	start := time.Now()
	logging.Info("Starting dataset reload", "at", start.Format(time.RFC3339))

	idx, err := s.loader.LoadIndex()
	if err != nil {
		s.dataStore.RecordReloadFailure(err)
		metrics.DatasetReloadsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	s.dataStore.UpdateIndex(idx)
	metrics.DatasetReloadsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	metrics.DatasetRecords.Set(float64(idx.Len()))

	logging.Info("Dataset reload completed",
		"duration", time.Since(start).String(),
		"record_count", idx.Len(),
		"disease_count", len(idx.AllDiseases()))
	return nil
}

// startHealthMonitoring warns when no successful reload happened for
// longer than the widest gap between two reload times plus an hour.
func (s *Scheduler) startHealthMonitoring() {
	staleAfter := maxReloadGap(s.reloadTimes) + time.Hour

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(healthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				lastUpdate := s.dataStore.GetLastUpdated()
				if time.Since(lastUpdate) > staleAfter {
					logging.Warn("Dataset hasn't been reloaded recently",
						"last_update", lastUpdate.Format(time.RFC3339),
						"threshold", staleAfter.String())
				}
			}
		}
	}()
}

// maxReloadGap returns the longest interval between consecutive daily
// reload times, wrapping around midnight. Invalid entries are ignored.
func maxReloadGap(times []string) time.Duration {
	var minutes []int
	for _, t := range times {
		parsed, err := time.Parse("15:04", t)
		if err != nil {
			continue
		}
		minutes = append(minutes, parsed.Hour()*60+parsed.Minute())
	}
	if len(minutes) <= 1 {
		return 24 * time.Hour
	}

	slices.Sort(minutes)

	widest := minutes[0] + 24*60 - minutes[len(minutes)-1]
	for i := 1; i < len(minutes); i++ {
		if gap := minutes[i] - minutes[i-1]; gap > widest {
			widest = gap
		}
	}
	return time.Duration(widest) * time.Minute
}

package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// TraceRepository provides database operations for bus traces and
// session events
type TraceRepository struct {
	db *gorm.DB
}

// NewTraceRepository creates a new repository instance
func NewTraceRepository(db *gorm.DB) *TraceRepository {
	return &TraceRepository{db: db}
}

// InsertBatch stores traces and events in one transaction.
func (r *TraceRepository) InsertBatch(traces []BusTrace, events []SessionEvent) error {
	if len(traces) == 0 && len(events) == 0 {
		return nil
	}

	const batchSize = 200

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if len(traces) > 0 {
			if err := tx.CreateInBatches(traces, batchSize).Error; err != nil {
				return err
			}
		}
		if len(events) > 0 {
			if err := tx.CreateInBatches(events, batchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert %d traces and %d events: %w", len(traces), len(events), err)
	}
	return nil
}

// Recent returns the newest traces, newest first. An empty endpoint
// matches every endpoint.
func (r *TraceRepository) Recent(endpoint string, limit int) ([]BusTrace, error) {
	var traces []BusTrace
	q := r.db.Order("at DESC, id DESC").Limit(limit)
	if endpoint != "" {
		q = q.Where("endpoint = ?", endpoint)
	}
	err := q.Find(&traces).Error
	return traces, err
}

// RecentEvents returns the newest session events, newest first.
func (r *TraceRepository) RecentEvents(endpoint string, limit int) ([]SessionEvent, error) {
	var events []SessionEvent
	q := r.db.Order("at DESC, id DESC").Limit(limit)
	if endpoint != "" {
		q = q.Where("endpoint = ?", endpoint)
	}
	err := q.Find(&events).Error
	return events, err
}

// CountByKind returns the number of stored traces per kind.
func (r *TraceRepository) CountByKind() (map[string]int64, error) {
	var rows []struct {
		Kind  string
		Count int64
	}
	err := r.db.Model(&BusTrace{}).
		Select("kind, COUNT(*) as count").
		Group("kind").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Kind] = row.Count
	}
	return out, nil
}

// Count returns the total number of traces in the database
func (r *TraceRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&BusTrace{}).Count(&count).Error
	return count, err
}

// PurgeBefore deletes traces and events older than t and reports how
// many rows went.
func (r *TraceRepository) PurgeBefore(t time.Time) (int64, error) {
	var removed int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("at < ?", t).Delete(&BusTrace{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected
		res = tx.Where("at < ?", t).Delete(&SessionEvent{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected
		return nil
	})
	return removed, err
}

// HealthCheck verifies the repository is working correctly
func (r *TraceRepository) HealthCheck() error {
	var count int64
	return r.db.Model(&BusTrace{}).Count(&count).Error
}

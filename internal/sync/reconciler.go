package sync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const groupPrefix = "group:"

// CheckpointStore persists sync_state values.
type CheckpointStore interface {
	SetCheckpoint(key, value string) error
	GetCheckpoint(key string) (string, bool, error)
	Checkpoints(prefix string) (map[string]string, error)
}

// Reconciler manages per-group sync checkpoints.
type Reconciler struct {
	db     CheckpointStore
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db CheckpointStore, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{db: db, logger: logger}
}

func groupKey(tag string) string {
	return groupPrefix + tag + ":last_sync"
}

// MarkGroupSynced records when the group with tag was last synced.
func (r *Reconciler) MarkGroupSynced(tag string, at time.Time) error {
	if err := r.db.SetCheckpoint(groupKey(tag), strconv.FormatInt(at.Unix(), 10)); err != nil {
		return fmt.Errorf("update checkpoint for group %s: %w", tag, err)
	}
	return nil
}

// LastGroupSync returns when the group was last synced, zero if never.
func (r *Reconciler) LastGroupSync(tag string) (time.Time, error) {
	v, ok, err := r.db.GetCheckpoint(groupKey(tag))
	if err != nil || !ok {
		return time.Time{}, err
	}
	return parseUnix(v)
}

// LastSync returns the most recent sync across all groups.
func (r *Reconciler) LastSync() (time.Time, error) {
	all, err := r.db.Checkpoints(groupPrefix)
	if err != nil {
		return time.Time{}, err
	}
	var latest time.Time
	for key, v := range all {
		if !strings.HasSuffix(key, ":last_sync") {
			continue
		}
		t, err := parseUnix(v)
		if err != nil {
			r.logger.Warn("ignoring malformed checkpoint", zap.String("key", key), zap.Error(err))
			continue
		}
		if t.After(latest) {
			latest = t
		}
	}
	return latest, nil
}

func parseUnix(v string) (time.Time, error) {
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse checkpoint %q: %w", v, err)
	}
	return time.Unix(secs, 0), nil
}

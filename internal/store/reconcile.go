package store

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wombat2006/wallbounce/internal/logger"
)

// Action reports the outcome of reconciling a remote replica
type Action string

const (
	// ActionUpdated means the remote copy was strictly newer and replaced
	// the local record
	ActionUpdated Action = "updated"
	// ActionLocalNewer means the local record was kept unchanged
	ActionLocalNewer Action = "local_newer"
)

// ReconcileResult describes what a reconciliation did
type ReconcileResult struct {
	Action          Action
	Key             string
	SourceRegion    string
	RemoteUpdatedAt time.Time
	LocalVersion    int64
}

// Reconciler applies last-write-wins reconciliation between regional
// replicas of the same record. Resolution compares updatedAt timestamps
// only; there is no field-level merging.
type Reconciler struct {
	store  VersionedStore
	region string
}

// NewReconciler creates a Reconciler writing into the local store
func NewReconciler(s VersionedStore, region string) *Reconciler {
	return &Reconciler{store: s, region: region}
}

// ReceiveRemote reconciles a record received from another region. A remote
// copy strictly newer than local state is adopted verbatim, keeping the
// remote version, timestamp and source region as provenance. Otherwise the
// local record stands.
func (r *Reconciler) ReceiveRemote(ctx context.Context, key string, remote Record) (*ReconcileResult, error) {
	local, err := r.store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if local != nil && !remote.UpdatedAt.After(local.UpdatedAt) {
		logger.Log.WithFields(logrus.Fields{
			"key":            key,
			"region":         r.region,
			"source_region":  remote.SourceRegion,
			"local_updated":  local.UpdatedAt.Format(time.RFC3339Nano),
			"remote_updated": remote.UpdatedAt.Format(time.RFC3339Nano),
		}).Debug("Local record is newer, keeping it")

		return &ReconcileResult{
			Action:          ActionLocalNewer,
			Key:             key,
			SourceRegion:    remote.SourceRegion,
			RemoteUpdatedAt: remote.UpdatedAt,
			LocalVersion:    local.Version,
		}, nil
	}

	if err := r.store.Restore(ctx, key, remote); err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"key":           key,
		"region":        r.region,
		"source_region": remote.SourceRegion,
		"version":       remote.Version,
	}).Info("Adopted newer remote record")

	return &ReconcileResult{
		Action:          ActionUpdated,
		Key:             key,
		SourceRegion:    remote.SourceRegion,
		RemoteUpdatedAt: remote.UpdatedAt,
		LocalVersion:    remote.Version,
	}, nil
}

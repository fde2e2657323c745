// Package cloudqueue implements the cloud queue client: poll a remote
// document store for queued print jobs, claim them, dispatch to the LAN
// and OS-printer transports, and report the outcome back. DocumentStore is
// the logical interface the poller needs; Firestore (firestore.go) is the
// one concrete backing implementation.
package cloudqueue

import (
	"context"

	"github.com/printbridge/agent/internal/model"
)

// DocumentStore is the narrow interface the poller needs against the
// remote job queue: list-queued, claim (implemented as get+conditional
// patch by the poller), mark-printed, and mark-failed are all expressed
// through Get/Patch plus the caller's own status transitions.
type DocumentStore interface {
	// ListQueued returns up to limit jobs with status=queued under
	// collectionPath. A missing collection (404) yields an empty slice,
	// not an error.
	ListQueued(ctx context.Context, collectionPath string, limit int) ([]model.Job, error)

	// Get fetches one job by its full document path. found is false if
	// the document does not exist.
	Get(ctx context.Context, docPath string) (job model.Job, found bool, err error)

	// Patch applies fields to the document at docPath, touching only the
	// field paths named in mask. A nil value for a field path means "set
	// this field to null".
	Patch(ctx context.Context, docPath string, fields map[string]any, mask []string) error
}

// CollectionPath returns the printQueue collection path for restaurantID.
func CollectionPath(restaurantID string) string {
	return "restaurants/" + restaurantID + "/printQueue"
}

// DocPath returns the full document path for jobID within restaurantID's
// queue.
func DocPath(restaurantID, jobID string) string {
	return CollectionPath(restaurantID) + "/" + jobID
}

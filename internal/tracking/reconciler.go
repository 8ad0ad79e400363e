package tracking

import (
	"context"

	"dropified/tracksync/internal/client"
	"dropified/tracksync/internal/domain"
	"dropified/tracksync/internal/metrics"
)

// Reconciler persists supplier status changes to the backend.
type Reconciler struct {
	backend         client.Backend
	unfulfilledOnly bool
}

func NewReconciler(backend client.Backend, unfulfilledOnly bool) *Reconciler {
	return &Reconciler{backend: backend, unfulfilledOnly: unfulfilledOnly}
}

// Reconcile writes status for task unless nothing changed. An unchanged order
// is only skipped when syncing unfulfilled orders and the order is not a
// bundle; bundles are always written.
func (r *Reconciler) Reconcile(ctx context.Context, task *domain.OrderTrackingTask, status *domain.SupplierStatus) (skipped bool, err error) {
	if r.unfulfilledOnly && !task.IsBundle && status.Unchanged(task) {
		return true, nil
	}

	sourceID := status.SourceID
	if sourceID == "" {
		sourceID = task.SourceID
	}

	err = r.backend.UpdateOrder(ctx, client.OrderUpdate{
		OrderID:        task.ID,
		Status:         status.OrderStatus,
		EndReason:      status.EndReason,
		TrackingNumber: status.TrackingNumber,
		OrderDetails:   status.OrderDetails,
		Bundle:         task.IsBundle,
		SourceID:       sourceID,
	})
	metrics.ObserveUpdate(err)
	if err != nil {
		return false, err
	}
	task.Updated = true
	return false, nil
}

package models_test

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/retail_backend/models"
)

func TestUpdateOrderStatus_RejectsSettledStatuses(t *testing.T) {
	ctx := context.Background()

	// Completed and Invoiced exist only as outcomes of conversion; a manual
	// status update must never park an order there with its reservation
	// still held.
	for _, status := range []models.OrderStatus{models.OrderStatusCompleted, models.OrderStatusInvoiced} {
		if _, err := models.UpdateOrderStatus(ctx, 1, status); err == nil {
			t.Fatalf("manual update to %s was accepted", status)
		}
	}

	if _, err := models.UpdateOrderStatus(ctx, 1, models.OrderStatus("Shipped")); err == nil {
		t.Fatal("unknown status was accepted")
	}
}

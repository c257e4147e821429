package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

func TestCompareAndSetStatusRejectsStaleVersion(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, enums.OrderStatusPending)
	ctx := context.Background()

	stale := *order
	ok, err := h.repo.CompareAndSetStatus(ctx, order, enums.OrderStatusPending, map[string]any{"status": enums.OrderStatusConfirmed})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.repo.CompareAndSetStatus(ctx, &stale, enums.OrderStatusPending, map[string]any{"status": enums.OrderStatusCancelled})
	require.NoError(t, err)
	assert.False(t, ok)

	reloaded := h.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusConfirmed, reloaded.Status)
	assert.Equal(t, 2, reloaded.Version)
}

func TestFindOrderForUpdateLoadsItems(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, enums.OrderStatusPending)
	key := h.reserve(t, order, 3, 1)
	require.NoError(t, h.db.Exec(
		"INSERT INTO order_line_items (id, order_id, variant_id, supplier_id, origin_id, quantity, unit_price, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)",
		"4b4a2a0e-9d7a-4c55-8f0e-1b7f4b1d2c01", order.ID, key.VariantID, key.SupplierID, key.OriginID, 1, "12.50",
	).Error)

	loaded, err := h.repo.WithTx(h.db).FindOrderForUpdate(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, "12.5", loaded.Items[0].LineTotal().String())
}

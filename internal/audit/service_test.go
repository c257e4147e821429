package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

func TestServiceLogPersistsSnapshots(t *testing.T) {
	conn := dbtest.Open(t, &models.AuditLog{})
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)

	orderID := uuid.New()
	actorID := "admin-7"
	err = svc.Log(context.Background(), Entry{
		StoreID:     uuid.New(),
		EntityType:  EntityOrder,
		EntityID:    orderID,
		Action:      "order.transition",
		ActorRole:   enums.ActorRoleAdmin,
		ActorID:     &actorID,
		Description: "pending -> confirmed",
		Before:      map[string]string{"status": "pending"},
		After:       map[string]string{"status": "confirmed"},
	})
	require.NoError(t, err)

	rows, err := svc.List(context.Background(), EntityOrder, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.JSONEq(t, `{"status":"pending"}`, string(rows[0].Before))
	require.JSONEq(t, `{"status":"confirmed"}`, string(rows[0].After))
	require.Equal(t, "admin-7", *rows[0].ActorID)
}

func TestServiceLogValidation(t *testing.T) {
	conn := dbtest.Open(t, &models.AuditLog{})
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)

	cases := map[string]Entry{
		"missing entity": {Action: "x", ActorRole: enums.ActorRoleSystem},
		"missing action": {EntityID: uuid.New(), ActorRole: enums.ActorRoleSystem},
		"bad role":       {EntityID: uuid.New(), Action: "x", ActorRole: "robot"},
		"bad snapshot":   {EntityID: uuid.New(), Action: "x", ActorRole: enums.ActorRoleSystem, After: make(chan int)},
	}
	for name, entry := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, svc.Log(context.Background(), entry))
		})
	}

	_, err = NewService(nil)
	require.Error(t, err)
}

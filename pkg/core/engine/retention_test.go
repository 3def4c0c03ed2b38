package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/module-engine/pkg/core/engine"
	"github.com/LENAX/module-engine/pkg/core/failure"
	"github.com/LENAX/module-engine/pkg/core/lifecycle"
	"github.com/LENAX/module-engine/pkg/storage"
)

func TestRetentionPruner_RunOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	old := lifecycle.NewWorkflowInstance("star-atlas", nil, nil)
	old.State = lifecycle.WorkflowStateCompleted
	old.UpdateTime = time.Now().Add(-14 * 24 * time.Hour)
	require.NoError(t, store.Save(ctx, old))

	recent := lifecycle.NewWorkflowInstance("mount-driver", nil, nil)
	recent.State = lifecycle.WorkflowStateCompleted
	require.NoError(t, store.Save(ctx, recent))

	classifier := failure.NewClassifier(nil, store)
	pruner, err := engine.NewRetentionPruner(store, classifier, engine.RetentionPolicy{
		WorkflowTTL: 7 * 24 * time.Hour,
		ErrorTTL:    30 * 24 * time.Hour,
	})
	require.NoError(t, err)

	pruner.RunOnce(ctx)

	_, err = store.Load(ctx, old.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.Load(ctx, recent.ID)
	assert.NoError(t, err)
}

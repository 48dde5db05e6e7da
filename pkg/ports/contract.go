package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunScenarioRepositoryContract runs a suite of tests to verify that a ScenarioRepository
// implementation adheres to the defined interface contract.
func RunScenarioRepositoryContract(t *testing.T, repo ScenarioRepository) {
	ctx := context.Background()
	scenarioID := "contract-" + time.Now().Format("20060102150405.000000000")

	createOps := []domain.Operation{
		{EntityType: domain.EntityScenario, EntityID: scenarioID, Action: domain.ActionCreate,
			Payload: domain.Snapshot{"id": scenarioID, "name": "Contract", "root_branch_id": "root", "status": "draft"}},
		{EntityType: domain.EntityBranch, EntityID: "root", Action: domain.ActionCreate,
			Payload: domain.Snapshot{"id": "root", "scenario_id": scenarioID}},
		{EntityType: domain.EntityStep, EntityID: "s1", Action: domain.ActionCreate,
			Payload: domain.Snapshot{"id": "s1", "branch_id": "root", "type": "delay", "params": map[string]any{"timeSpan": "PT1S"}}},
	}

	t.Run("Apply and Load", func(t *testing.T) {
		version, err := repo.Apply(ctx, scenarioID, 0, createOps)
		require.NoError(t, err, "Apply should not return error")
		assert.Equal(t, 1, version)

		doc, err := repo.Load(ctx, scenarioID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, scenarioID, doc.ScenarioID)
		assert.Equal(t, 1, doc.Version)
		require.Len(t, doc.Records, 3)

		var step domain.Snapshot
		for _, rec := range doc.Records {
			if rec.EntityType == domain.EntityStep {
				step = rec.Snapshot
			}
		}
		require.NotNil(t, step)
		params, ok := step["params"].(map[string]any)
		require.True(t, ok, "nested maps must survive persistence")
		assert.Equal(t, "PT1S", params["timeSpan"])
	})

	t.Run("Update Delete And Upsert", func(t *testing.T) {
		version, err := repo.Apply(ctx, scenarioID, 1, []domain.Operation{
			{EntityType: domain.EntityStep, EntityID: "s1", Action: domain.ActionUpdate,
				Payload: domain.Snapshot{"id": "s1", "branch_id": "root", "type": "delay", "params": map[string]any{"timeSpan": "PT5S"}}},
			{EntityType: domain.EntityStep, EntityID: "s2", Action: domain.ActionCreate,
				Payload: domain.Snapshot{"id": "s2", "branch_id": "root", "type": "signal"}},
			{EntityType: domain.EntityStep, EntityID: "s2", Action: domain.ActionCreate,
				Payload: domain.Snapshot{"id": "s2", "branch_id": "root", "type": "jump"}},
			{EntityType: domain.EntityRelation, EntityID: "ghost", Action: domain.ActionDelete},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, version)

		doc, err := repo.Load(ctx, scenarioID)
		require.NoError(t, err)
		got := make(map[string]domain.Snapshot)
		for _, rec := range doc.Records {
			got[rec.EntityID] = rec.Snapshot
		}
		assert.Equal(t, "jump", got["s2"]["type"])
		assert.Equal(t, "PT5S", got["s1"]["params"].(map[string]any)["timeSpan"])

		_, err = repo.Apply(ctx, scenarioID, 2, []domain.Operation{
			{EntityType: domain.EntityStep, EntityID: "s2", Action: domain.ActionDelete},
		})
		require.NoError(t, err)

		doc, err = repo.Load(ctx, scenarioID)
		require.NoError(t, err)
		assert.Len(t, doc.Records, 3)
	})

	t.Run("Stale Version Conflicts", func(t *testing.T) {
		_, err := repo.Apply(ctx, scenarioID, 1, []domain.Operation{
			{EntityType: domain.EntityStep, EntityID: "s1", Action: domain.ActionDelete},
		})
		assert.ErrorIs(t, err, domain.ErrSyncConflict)

		doc, err := repo.Load(ctx, scenarioID)
		require.NoError(t, err)
		assert.Equal(t, 3, doc.Version, "a rejected apply must not bump the version")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := repo.Load(ctx, "non-existent-"+scenarioID)
		assert.ErrorIs(t, err, domain.ErrScenarioNotFound)
	})

	t.Run("List", func(t *testing.T) {
		ids, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, scenarioID)
	})

	t.Run("Delete", func(t *testing.T) {
		err := repo.Delete(ctx, scenarioID)
		require.NoError(t, err, "Delete should not return error")

		_, err = repo.Load(ctx, scenarioID)
		assert.ErrorIs(t, err, domain.ErrScenarioNotFound, "Load after Delete should return ErrScenarioNotFound")
	})
}

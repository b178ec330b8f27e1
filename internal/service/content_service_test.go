package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
)

func TestListReleasedForLearner(t *testing.T) {
	store := newSubmissionStoreStub()
	store.put(models.Submission{ID: "mt", LearnerID: "learner-1", CohortID: "cohort-a", TargetType: models.TargetMicroTask, TargetID: "task-1", Status: models.SubmissionStatusPending})
	svc := NewContentService(newCatalogFixture(), store, nil)

	modules, err := svc.ListReleased(context.Background(), learnerScope("learner-1", "cohort-a"))
	require.NoError(t, err)
	require.Len(t, modules, 1, "unreleased modules are hidden")
	assert.Equal(t, "module-1", modules[0].ID)

	units := modules[0].Units
	require.Len(t, units, 1, "unreleased units are hidden")
	assert.Equal(t, "unit-1", units[0].ID)
	assert.Equal(t, "<p>Intro</p>", units[0].Content)

	require.NotNil(t, units[0].Gate)
	assert.Equal(t, models.GateAvailable, units[0].Gate.State)
	require.Len(t, units[0].MicroTasks, 1, "unreleased micro-tasks are hidden")
	assert.True(t, units[0].MicroTasks[0].Submitted)
}

func TestListReleasedForReviewerHasNoGates(t *testing.T) {
	svc := NewContentService(newCatalogFixture(), newSubmissionStoreStub(), nil)

	modules, err := svc.ListReleased(context.Background(), reviewerScope("cohort-a"))
	require.NoError(t, err)
	require.Len(t, modules, 1)
	require.Len(t, modules[0].Units, 1)
	assert.Nil(t, modules[0].Units[0].Gate)
	assert.False(t, modules[0].Units[0].MicroTasks[0].Submitted)
}

func TestListReleasedStripsMarkupFromTitles(t *testing.T) {
	catalog := newCatalogFixture()
	catalog.modules[0].Title = "<h1>Foundations</h1>"
	catalog.units[0].Title = `<b>Variables</b><img src=x onerror="alert(1)">`
	catalog.tasks[0].Title = "<script>steal()</script>Read chapter"
	svc := NewContentService(catalog, newSubmissionStoreStub(), nil)

	modules, err := svc.ListReleased(context.Background(), learnerScope("learner-1", "cohort-a"))
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "Foundations", modules[0].Title)
	require.Len(t, modules[0].Units, 1)
	assert.Equal(t, "Variables", modules[0].Units[0].Title)
	require.Len(t, modules[0].Units[0].MicroTasks, 1)
	assert.Equal(t, "Read chapter", modules[0].Units[0].MicroTasks[0].Title)
}

func TestListReleasedWithoutScopeIsEmpty(t *testing.T) {
	svc := NewContentService(newCatalogFixture(), newSubmissionStoreStub(), nil)

	modules, err := svc.ListReleased(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, modules)
}

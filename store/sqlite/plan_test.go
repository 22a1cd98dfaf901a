package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidecore/agentcore/domain"
)

func TestStorage_UpsertPlan_CreatesNewPlan(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sess := newSession()
	require.NoError(t, s.CreateSession(ctx, sess))

	plan := &domain.Plan{
		SessionID: sess.ID,
		Title:     "ship the feature",
		Tasks: []domain.Task{
			{ID: "t1", Description: "write the code", Status: domain.TaskPending},
			{ID: "t2", Description: "write the tests", Status: domain.TaskPending, Dependencies: []string{"t1"}},
		},
	}
	require.NoError(t, s.UpsertPlan(ctx, plan))
	assert.NotEmpty(t, plan.ID, "UpsertPlan must assign an id to a brand new plan")
	assert.Equal(t, domain.PlanInProgress, plan.Status, "UpsertPlan defaults status when unset")

	got, err := s.GetPlanForSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, got.ID)
	assert.Equal(t, "ship the feature", got.Title)
	require.Len(t, got.Tasks, 2)
	assert.Equal(t, "t1", got.Tasks[0].ID)
	assert.Equal(t, "t2", got.Tasks[1].ID)
	assert.Equal(t, []string{"t1"}, got.Tasks[1].Dependencies)
}

func TestStorage_UpsertPlan_SecondCallReplacesNotDuplicates(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sess := newSession()
	require.NoError(t, s.CreateSession(ctx, sess))

	first := &domain.Plan{
		SessionID: sess.ID,
		Title:     "v1",
		Tasks:     []domain.Task{{ID: "t1", Description: "first draft"}},
	}
	require.NoError(t, s.UpsertPlan(ctx, first))
	firstID := first.ID

	second := &domain.Plan{
		SessionID: sess.ID,
		Title:     "v2",
		Tasks: []domain.Task{
			{ID: "t1", Description: "revised step"},
			{ID: "t2", Description: "new step"},
		},
	}
	require.NoError(t, s.UpsertPlan(ctx, second))

	assert.Equal(t, firstID, second.ID, "replacing a session's plan must keep the same plan id")

	got, err := s.GetPlanForSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)
	require.Len(t, got.Tasks, 2, "stale tasks from the first upsert must not linger")

	var planCount int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM plans WHERE session_id = ?`, sess.ID).Scan(&planCount))
	assert.Equal(t, 1, planCount, "the unique(session_id) constraint must prevent a second plan row")
}

func TestStorage_UpsertPlan_HonorsExplicitID(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sess := newSession()
	require.NoError(t, s.CreateSession(ctx, sess))

	require.NoError(t, s.UpsertPlan(ctx, &domain.Plan{SessionID: sess.ID, Title: "a", ID: "plan-a"}))

	got, err := s.GetPlanForSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "plan-a", got.ID)
}

func TestStorage_UpsertPlan_DifferentSessionsGetDistinctPlans(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	a, b := newSession(), newSession()
	require.NoError(t, s.CreateSession(ctx, a))
	require.NoError(t, s.CreateSession(ctx, b))

	require.NoError(t, s.UpsertPlan(ctx, &domain.Plan{SessionID: a.ID, Title: "plan for a"}))
	require.NoError(t, s.UpsertPlan(ctx, &domain.Plan{SessionID: b.ID, Title: "plan for b"}))

	gotA, err := s.GetPlanForSession(ctx, a.ID)
	require.NoError(t, err)
	gotB, err := s.GetPlanForSession(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "plan for a", gotA.Title)
	assert.Equal(t, "plan for b", gotB.Title)
	assert.NotEqual(t, gotA.ID, gotB.ID)
}

func TestStorage_GetPlanForSession_NotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetPlanForSession(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_UpdateTaskStatus(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sess := newSession()
	require.NoError(t, s.CreateSession(ctx, sess))
	plan := &domain.Plan{
		SessionID: sess.ID,
		Title:     "p",
		Tasks:     []domain.Task{{ID: "t1", Description: "do it", Status: domain.TaskPending}},
	}
	require.NoError(t, s.UpsertPlan(ctx, plan))

	require.NoError(t, s.UpdateTaskStatus(ctx, sess.ID, "t1", domain.TaskCompleted))

	got, err := s.GetPlanForSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, domain.TaskCompleted, got.Tasks[0].Status)
}

func TestStorage_UpdateTaskStatus_NoSuchTaskReturnsNotFound(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sess := newSession()
	require.NoError(t, s.CreateSession(ctx, sess))
	require.NoError(t, s.UpsertPlan(ctx, &domain.Plan{SessionID: sess.ID, Title: "p"}))

	err := s.UpdateTaskStatus(ctx, sess.ID, "no-such-task", domain.TaskCompleted)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_UpdateTaskStatus_NoSuchPlanReturnsNotFound(t *testing.T) {
	s := newTestStorage(t)
	err := s.UpdateTaskStatus(context.Background(), "no-such-session", "t1", domain.TaskCompleted)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_AbandonPlan(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sess := newSession()
	require.NoError(t, s.CreateSession(ctx, sess))
	require.NoError(t, s.UpsertPlan(ctx, &domain.Plan{SessionID: sess.ID, Title: "p"}))

	require.NoError(t, s.AbandonPlan(ctx, sess.ID))

	got, err := s.GetPlanForSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanAbandoned, got.Status)
}

func TestStorage_AbandonPlan_NotFound(t *testing.T) {
	s := newTestStorage(t)
	err := s.AbandonPlan(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, ErrNotFound)
}

package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/memstore"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPipeline() (*memstore.Store, *service.PipelineService) {
	store := memstore.New()
	return store, service.NewPipelineService(store, zap.NewNop()).WithClock(func() time.Time { return testNow })
}

func TestCreateProspect_Defaults(t *testing.T) {
	_, svc := newPipeline()

	p, err := svc.CreateProspect(context.Background(), "c1", domain.ProspectInput{Name: "Acme Traders"})
	require.NoError(t, err)
	assert.Equal(t, domain.ProspectNew, p.Status)
	assert.Equal(t, domain.PriorityMedium, p.Priority)
	assert.NotNil(t, p.Tags)

	_, err = svc.CreateProspect(context.Background(), "c1", domain.ProspectInput{Name: "x", Priority: "whenever"})
	var ve *domain.ErrValidation
	assert.ErrorAs(t, err, &ve)
}

func TestUpdateProspect_Partial(t *testing.T) {
	ctx := context.Background()
	_, svc := newPipeline()
	p, err := svc.CreateProspect(ctx, "c1", domain.ProspectInput{Name: "Acme", Email: "hi@acme.io"})
	require.NoError(t, err)

	status := domain.ProspectNegotiating
	updated, err := svc.UpdateProspect(ctx, "c1", p.ID, domain.ProspectUpdate{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, domain.ProspectNegotiating, updated.Status)
	assert.Equal(t, "hi@acme.io", updated.Email)

	_, err = svc.UpdateProspect(ctx, "c2", p.ID, domain.ProspectUpdate{Status: &status})
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestPostMessage_UpdatesConversation(t *testing.T) {
	ctx := context.Background()
	_, svc := newPipeline()
	p, err := svc.CreateProspect(ctx, "c1", domain.ProspectInput{Name: "Acme"})
	require.NoError(t, err)
	c, err := svc.CreateConversation(ctx, "c1", domain.ConversationInput{ProspectID: p.ID, Title: "Intro"})
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationOpen, c.Status)

	long := strings.Repeat("é", 150)
	_, err = svc.PostMessage(ctx, "c1", c.ID, domain.MessageInput{Content: long, Sender: domain.SenderUser})
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, "c1", c.ID, domain.MessageInput{Content: "thanks!", Sender: domain.SenderProspect})
	require.NoError(t, err)

	got, err := svc.GetConversation(ctx, "c1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
	assert.Equal(t, "thanks!", got.LastMessage)
	require.NotNil(t, got.LastMessageAt)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, domain.SenderUser, got.Messages[0].Sender)

	_, err = svc.PostMessage(ctx, "c1", c.ID, domain.MessageInput{Content: "x", Sender: "bot"})
	var ve *domain.ErrValidation
	assert.ErrorAs(t, err, &ve)
}

func TestPostMessage_PreviewTruncatedByRunes(t *testing.T) {
	ctx := context.Background()
	_, svc := newPipeline()
	p, err := svc.CreateProspect(ctx, "c1", domain.ProspectInput{Name: "Acme"})
	require.NoError(t, err)
	c, err := svc.CreateConversation(ctx, "c1", domain.ConversationInput{ProspectID: p.ID, Title: "Intro"})
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, "c1", c.ID, domain.MessageInput{Content: strings.Repeat("é", 150), Sender: domain.SenderUser})
	require.NoError(t, err)

	got, err := svc.GetConversation(ctx, "c1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 100), got.LastMessage)
}

func TestCreateConversation_ForeignProspect(t *testing.T) {
	ctx := context.Background()
	_, svc := newPipeline()
	p, err := svc.CreateProspect(ctx, "c2", domain.ProspectInput{Name: "Other"})
	require.NoError(t, err)

	_, err = svc.CreateConversation(ctx, "c1", domain.ConversationInput{ProspectID: p.ID, Title: "Intro"})
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestReminders_UpcomingAndCompletion(t *testing.T) {
	ctx := context.Background()
	_, svc := newPipeline()
	p, err := svc.CreateProspect(ctx, "c1", domain.ProspectInput{Name: "Acme"})
	require.NoError(t, err)

	soon := testNow.Add(48 * time.Hour)
	later := testNow.Add(10 * 24 * time.Hour)
	r1, err := svc.CreateReminder(ctx, "c1", domain.ReminderInput{ProspectID: p.ID, Title: "Call back", DueAt: &soon})
	require.NoError(t, err)
	_, err = svc.CreateReminder(ctx, "c1", domain.ReminderInput{ProspectID: p.ID, Title: "Check in", DueAt: &later})
	require.NoError(t, err)

	_, err = svc.CreateReminder(ctx, "c1", domain.ReminderInput{ProspectID: p.ID, Title: "No date"})
	var ve *domain.ErrValidation
	assert.ErrorAs(t, err, &ve)

	upcoming, err := svc.ListReminders(ctx, "c1", domain.ReminderFilter{}, true)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, r1.ID, upcoming[0].ID)

	completed := domain.ReminderCompleted
	done, err := svc.UpdateReminder(ctx, "c1", r1.ID, domain.ReminderUpdate{Status: &completed})
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.True(t, done.CompletedAt.Equal(testNow))

	upcoming, err = svc.ListReminders(ctx, "c1", domain.ReminderFilter{}, true)
	require.NoError(t, err)
	assert.Empty(t, upcoming)

	all, err := svc.ListReminders(ctx, "c1", domain.ReminderFilter{ProspectID: p.ID}, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetProspect_IncludesPipeline(t *testing.T) {
	ctx := context.Background()
	_, svc := newPipeline()
	p, err := svc.CreateProspect(ctx, "c1", domain.ProspectInput{Name: "Acme"})
	require.NoError(t, err)
	_, err = svc.CreateConversation(ctx, "c1", domain.ConversationInput{ProspectID: p.ID, Title: "Intro"})
	require.NoError(t, err)
	due := testNow.Add(time.Hour)
	_, err = svc.CreateReminder(ctx, "c1", domain.ReminderInput{ProspectID: p.ID, Title: "Ping", DueAt: &due})
	require.NoError(t, err)

	got, err := svc.GetProspect(ctx, "c1", p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Conversations, 1)
	assert.Len(t, got.Reminders, 1)

	require.NoError(t, svc.DeleteProspect(ctx, "c1", p.ID))
	convs, err := svc.ListConversations(ctx, "c1", domain.ConversationFilter{})
	require.NoError(t, err)
	assert.Empty(t, convs)
}

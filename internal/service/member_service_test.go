package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/memstore"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBulkDelete_ForeignIDDeletesNothing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	own := store.PutMember(domain.Member{CompanyID: "c1", WhopUserID: "u1"})
	foreign := store.PutMember(domain.Member{CompanyID: "c2", WhopUserID: "u2"})
	svc := service.NewMemberService(store, zap.NewNop())

	n, err := svc.BulkDelete(ctx, "c1", []string{own.ID, foreign.ID})
	var fe *domain.ErrForbidden
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "Some members not found or don't belong to this company", fe.Message)
	assert.Zero(t, n)

	_, err = store.GetMember(ctx, "c1", own.ID)
	assert.NoError(t, err)
	_, err = store.GetMember(ctx, "c2", foreign.ID)
	assert.NoError(t, err)
}

func TestBulkDelete_OwnMembers(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	a := store.PutMember(domain.Member{CompanyID: "c1", WhopUserID: "u1"})
	b := store.PutMember(domain.Member{CompanyID: "c1", WhopUserID: "u2"})
	svc := service.NewMemberService(store, zap.NewNop())

	n, err := svc.BulkDelete(ctx, "c1", []string{a.ID, b.ID, a.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = svc.BulkDelete(ctx, "c1", nil)
	var ve *domain.ErrValidation
	assert.ErrorAs(t, err, &ve)
}

func TestAssignTag_DuplicateAndIsolation(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	m := store.PutMember(domain.Member{CompanyID: "c1", WhopUserID: "u1"})
	svc := service.NewMemberService(store, zap.NewNop())

	tag, err := svc.CreateTag(ctx, "c1", domain.TagInput{Name: "VIP", Color: "#ff0"})
	require.NoError(t, err)
	other, err := svc.CreateTag(ctx, "c2", domain.TagInput{Name: "VIP"})
	require.NoError(t, err)

	mt, err := svc.AssignTag(ctx, "c1", m.ID, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, "VIP", mt.Tag.Name)

	_, err = svc.AssignTag(ctx, "c1", m.ID, tag.ID)
	var de *domain.ErrDuplicate
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "Member already has this tag", de.Message)

	_, err = svc.AssignTag(ctx, "c1", m.ID, other.ID)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)

	require.NoError(t, svc.UnassignTag(ctx, "c1", m.ID, tag.ID))
	assert.ErrorAs(t, svc.UnassignTag(ctx, "c1", m.ID, tag.ID), &nf)
}

func TestCreateTag_DuplicateName(t *testing.T) {
	ctx := context.Background()
	svc := service.NewMemberService(memstore.New(), zap.NewNop())

	_, err := svc.CreateTag(ctx, "c1", domain.TagInput{Name: "vip"})
	require.NoError(t, err)
	_, err = svc.CreateTag(ctx, "c1", domain.TagInput{Name: "VIP"})
	var de *domain.ErrDuplicate
	assert.ErrorAs(t, err, &de)
}

func TestNotes_SanitizedAndScoped(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	m := store.PutMember(domain.Member{CompanyID: "c1", WhopUserID: "u1"})
	other := store.PutMember(domain.Member{CompanyID: "c1", WhopUserID: "u2"})
	svc := service.NewMemberService(store, zap.NewNop())

	note, err := svc.AddNote(ctx, "c1", m.ID, domain.NoteInput{Content: `<script>alert(1)</script>Called & <i>renewed</i>`})
	require.NoError(t, err)
	assert.Equal(t, "Called & renewed", note.Content)

	_, err = svc.AddNote(ctx, "c2", m.ID, domain.NoteInput{Content: "hi"})
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)

	_, err = svc.AddNote(ctx, "c1", m.ID, domain.NoteInput{Content: "<b></b>"})
	var ve *domain.ErrValidation
	assert.ErrorAs(t, err, &ve)

	assert.ErrorAs(t, svc.DeleteNote(ctx, "c1", other.ID, note.ID), &nf)
	require.NoError(t, svc.DeleteNote(ctx, "c1", m.ID, note.ID))

	notes, err := svc.ListNotes(ctx, "c1", m.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	a := store.PutMember(domain.Member{CompanyID: "c1", WhopUserID: "u1", Status: domain.MemberActive, TotalRevenue: 100, MonthlyRevenue: 10})
	store.PutMember(domain.Member{CompanyID: "c1", WhopUserID: "u2", Status: domain.MemberCancelled, TotalRevenue: 50})
	store.PutMember(domain.Member{CompanyID: "c2", WhopUserID: "u3", Status: domain.MemberActive, TotalRevenue: 999})
	for i := 0; i < 12; i++ {
		_, err := store.CreateEvent(ctx, &domain.Event{MemberID: a.ID, Type: "payment_succeeded"})
		require.NoError(t, err)
	}
	svc := service.NewMemberService(store, zap.NewNop())

	stats, err := svc.Dashboard(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMembers)
	assert.Equal(t, 1, stats.ActiveMembers)
	assert.InDelta(t, 150.0, stats.TotalRevenue, 0.001)
	assert.InDelta(t, 10.0, stats.MonthlyRevenue, 0.001)
	assert.Len(t, stats.RecentEvents, 10)
}

func TestBulkExport_SkipsForeignMembers(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	own := store.PutMember(domain.Member{CompanyID: "c1", WhopUserID: "u1", Email: "own@x.io"})
	foreign := store.PutMember(domain.Member{CompanyID: "c2", WhopUserID: "u2", Email: "foreign@x.io"})
	svc := service.NewMemberService(store, zap.NewNop())

	exp, err := svc.BulkExport(ctx, "c1", []string{own.ID, foreign.ID})
	require.NoError(t, err)
	assert.Regexp(t, `^members-export-\d+\.csv$`, exp.Filename)

	rows, err := csv.NewReader(bytes.NewReader(exp.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "own@x.io", rows[1][0])
	assert.Equal(t, "No plan", rows[1][3])
}

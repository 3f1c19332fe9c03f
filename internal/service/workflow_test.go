package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/KaranNegi08/chatZila/internal/apperr"
	"github.com/KaranNegi08/chatZila/internal/events"
	"github.com/KaranNegi08/chatZila/internal/hub"
	"github.com/KaranNegi08/chatZila/internal/models"
)

type workflowFixture struct {
	users  *fakeUsers
	rooms  *fakeRooms
	notifs *fakeNotifs
	hub    *hub.Hub
	svc    *WorkflowService
}

func newWorkflowFixture() *workflowFixture {
	users := newFakeUsers()
	rooms := newFakeRooms()
	notifs := newFakeNotifs()
	log := zap.NewNop().Sugar()
	h := hub.New(rooms, 8, log)
	return &workflowFixture{
		users:  users,
		rooms:  rooms,
		notifs: notifs,
		hub:    h,
		svc:    NewWorkflowService(rooms, users, notifs, h, events.Nop{}, log),
	}
}

func (f *workflowFixture) room(owner *models.User, maxMembers int) *models.Room {
	room, _ := f.rooms.Create(context.Background(), &models.Room{
		Name:       "general",
		CreatedBy:  owner.ID,
		MaxMembers: maxMembers,
		Members: []models.Membership{{
			UserID: owner.ID, Role: models.RoleOwner, JoinedAt: time.Now().UTC(),
		}},
	})
	return room
}

func readFrame(t *testing.T, s *hub.Session) hub.Event {
	t.Helper()
	select {
	case b := <-s.Out():
		var ev hub.Event
		require.NoError(t, json.Unmarshal(b, &ev))
		return ev
	default:
		t.Fatal("expected a frame, channel empty")
		return hub.Event{}
	}
}

func TestInviteCreatesPendingNotification(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	target := f.users.add("dana", "dana@test.io")
	room := f.room(owner, 100)

	session := f.hub.Register("conn-dana", target.ID)

	n, err := f.svc.Invite(context.Background(), owner.ID, room.ID, "dana@test.io")
	require.NoError(t, err)
	assert.Equal(t, models.NotifRoomInvitation, n.Type)
	assert.Equal(t, target.ID, n.RecipientID)
	assert.Equal(t, owner.ID, n.SenderID)
	assert.Equal(t, models.ActionPending, n.ActionTaken)
	require.NotNil(t, n.Data.RoomID)
	assert.Equal(t, room.ID, *n.Data.RoomID)

	ev := readFrame(t, session)
	assert.Equal(t, EventNotification, ev.Event)
}

func TestInviteByNonMemberRejected(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	outsider := f.users.add("mallory", "mallory@test.io")
	f.users.add("dana", "dana@test.io")
	room := f.room(owner, 100)

	_, err := f.svc.Invite(context.Background(), outsider.ID, room.ID, "dana@test.io")
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestInviteExistingMemberConflicts(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	room := f.room(owner, 100)

	_, err := f.svc.Invite(context.Background(), owner.ID, room.ID, "owner@test.io")
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestInviteUnknownEmailNotFound(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	room := f.room(owner, 100)

	_, err := f.svc.Invite(context.Background(), owner.ID, room.ID, "nobody@test.io")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestDuplicatePendingInviteConflicts(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	f.users.add("dana", "dana@test.io")
	room := f.room(owner, 100)

	_, err := f.svc.Invite(context.Background(), owner.ID, room.ID, "dana@test.io")
	require.NoError(t, err)

	_, err = f.svc.Invite(context.Background(), owner.ID, room.ID, "dana@test.io")
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestRequestJoinGoesToCreator(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	requester := f.users.add("rae", "rae@test.io")
	room := f.room(owner, 100)

	n, err := f.svc.RequestJoin(context.Background(), requester.ID, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotifJoinRequest, n.Type)
	assert.Equal(t, owner.ID, n.RecipientID)
	assert.Equal(t, requester.ID, n.SenderID)
}

func TestRequestJoinWhenAlreadyMemberConflicts(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	room := f.room(owner, 100)

	_, err := f.svc.RequestJoin(context.Background(), owner.ID, room.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestRequestJoinFullRoomConflicts(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	requester := f.users.add("rae", "rae@test.io")
	room := f.room(owner, 1) // owner fills the only slot

	_, err := f.svc.RequestJoin(context.Background(), requester.ID, room.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, "room is full", apperr.Message(err))
}

func TestConcurrentJoinRequestsCreateOnePending(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	requester := f.users.add("rae", "rae@test.io")
	room := f.room(owner, 100)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.RequestJoin(context.Background(), requester.ID, room.ID)
		}(i)
	}
	wg.Wait()

	var created int
	for _, err := range errs {
		if err == nil {
			created++
		} else {
			assert.True(t, apperr.IsKind(err, apperr.KindConflict))
		}
	}
	assert.Equal(t, 1, created)

	pending, err := f.notifs.FindByRecipient(context.Background(), owner.ID, 1, 100, false)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRespondAcceptAddsMember(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	requester := f.users.add("rae", "rae@test.io")
	room := f.room(owner, 100)

	requesterSession := f.hub.Register("conn-rae", requester.ID)

	n, err := f.svc.RequestJoin(context.Background(), requester.ID, room.ID)
	require.NoError(t, err)

	resolved, err := f.svc.Respond(context.Background(), n.ID, owner.ID, "accept")
	require.NoError(t, err)
	assert.Equal(t, models.ActionAccepted, resolved.ActionTaken)
	assert.True(t, resolved.IsRead)

	isMember, err := f.rooms.IsMember(context.Background(), room.ID, requester.ID)
	require.NoError(t, err)
	assert.True(t, isMember)

	ev := readFrame(t, requesterSession)
	assert.Equal(t, EventMembershipUpdated, ev.Event)
}

func TestRespondDeclineLeavesMembershipAlone(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	requester := f.users.add("rae", "rae@test.io")
	room := f.room(owner, 100)

	n, err := f.svc.RequestJoin(context.Background(), requester.ID, room.ID)
	require.NoError(t, err)

	resolved, err := f.svc.Respond(context.Background(), n.ID, owner.ID, "decline")
	require.NoError(t, err)
	assert.Equal(t, models.ActionDeclined, resolved.ActionTaken)

	isMember, err := f.rooms.IsMember(context.Background(), room.ID, requester.ID)
	require.NoError(t, err)
	assert.False(t, isMember)
}

func TestRespondByNonRecipientRejected(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	requester := f.users.add("rae", "rae@test.io")
	room := f.room(owner, 100)

	n, err := f.svc.RequestJoin(context.Background(), requester.ID, room.ID)
	require.NoError(t, err)

	// the requester cannot approve their own request
	_, err = f.svc.Respond(context.Background(), n.ID, requester.ID, "accept")
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestRespondTwiceConflicts(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	requester := f.users.add("rae", "rae@test.io")
	room := f.room(owner, 100)

	n, err := f.svc.RequestJoin(context.Background(), requester.ID, room.ID)
	require.NoError(t, err)

	_, err = f.svc.Respond(context.Background(), n.ID, owner.ID, "accept")
	require.NoError(t, err)

	_, err = f.svc.Respond(context.Background(), n.ID, owner.ID, "decline")
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// state stays accepted
	stored, err := f.notifs.FindByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionAccepted, stored.ActionTaken)
}

func TestRespondInvalidAction(t *testing.T) {
	f := newWorkflowFixture()
	_, err := f.svc.Respond(context.Background(), primitive.NewObjectID(), primitive.NewObjectID(), "maybe")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestAcceptInviteWhenAlreadyMemberStillResolves(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	target := f.users.add("dana", "dana@test.io")
	room := f.room(owner, 100)

	n, err := f.svc.Invite(context.Background(), owner.ID, room.ID, "dana@test.io")
	require.NoError(t, err)

	// target joined through another path while the invite sat pending
	added, err := f.rooms.AddMember(context.Background(), room.ID, models.Membership{
		UserID: target.ID, Role: models.RoleMember, JoinedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, added)

	resolved, err := f.svc.Respond(context.Background(), n.ID, target.ID, "accept")
	require.NoError(t, err)
	assert.Equal(t, models.ActionAccepted, resolved.ActionTaken)

	// membership list still carries a single entry for the target
	got, err := f.rooms.FindByID(context.Background(), room.ID)
	require.NoError(t, err)
	var count int
	for _, m := range got.Members {
		if m.UserID == target.ID {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDeclineThenReinviteAllowed(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")
	target := f.users.add("dana", "dana@test.io")
	room := f.room(owner, 100)

	n, err := f.svc.Invite(context.Background(), owner.ID, room.ID, "dana@test.io")
	require.NoError(t, err)
	_, err = f.svc.Respond(context.Background(), n.ID, target.ID, "decline")
	require.NoError(t, err)

	// resolution cleared the pending slot, a fresh invite may be issued
	_, err = f.svc.Invite(context.Background(), owner.ID, room.ID, "dana@test.io")
	assert.NoError(t, err)
}

func TestNotificationListPagination(t *testing.T) {
	f := newWorkflowFixture()
	owner := f.users.add("owner", "owner@test.io")

	for i := 0; i < 3; i++ {
		requester := f.users.add("user", "user@test.io")
		room := f.room(owner, 100)
		_, err := f.svc.RequestJoin(context.Background(), requester.ID, room.ID)
		require.NoError(t, err)
	}

	page, err := f.svc.List(context.Background(), owner.ID, 1, 2, false)
	require.NoError(t, err)
	assert.Len(t, page.Notifications, 2)
	assert.Equal(t, int64(3), page.UnreadCount)
	assert.True(t, page.HasMore)

	require.NoError(t, f.svc.MarkAllRead(context.Background(), owner.ID))
	page, err = f.svc.List(context.Background(), owner.ID, 1, 10, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.UnreadCount)
}

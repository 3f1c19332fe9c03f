package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KaranNegi08/chatZila/internal/apperr"
	"github.com/KaranNegi08/chatZila/internal/models"
)

func newRoomFixture() (*RoomService, *fakePresence, *fakeUsers) {
	users := newFakeUsers()
	rooms := newFakeRooms()
	pres := newFakePresence()
	return NewRoomService(rooms, users, pres, zap.NewNop().Sugar()), pres, users
}

func TestCreateSeedsOwnerMembership(t *testing.T) {
	svc, _, users := newRoomFixture()
	owner := users.add("owner", "owner@test.io")

	room, err := svc.Create(context.Background(), owner.ID, "  general  ", "the lobby", false)
	require.NoError(t, err)
	assert.Equal(t, "general", room.Name)
	assert.Equal(t, owner.ID, room.CreatedBy)
	require.Len(t, room.Members, 1)
	assert.Equal(t, owner.ID, room.Members[0].UserID)
	assert.Equal(t, models.RoleOwner, room.Members[0].Role)
	assert.Equal(t, defaultMaxMembers, room.MaxMembers)
}

func TestCreateValidation(t *testing.T) {
	svc, _, users := newRoomFixture()
	owner := users.add("owner", "owner@test.io")
	ctx := context.Background()

	_, err := svc.Create(ctx, owner.ID, "   ", "", false)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.Create(ctx, owner.ID, strings.Repeat("n", maxRoomNameLen+1), "", false)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.Create(ctx, owner.ID, "ok", strings.Repeat("d", maxRoomDescLen+1), false)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestAvailableExcludesJoinedAndPrivate(t *testing.T) {
	svc, _, users := newRoomFixture()
	owner := users.add("owner", "owner@test.io")
	browser := users.add("browser", "browser@test.io")
	ctx := context.Background()

	mine, err := svc.Create(ctx, browser.ID, "mine", "", false)
	require.NoError(t, err)
	open, err := svc.Create(ctx, owner.ID, "open", "", false)
	require.NoError(t, err)
	_, err = svc.Create(ctx, owner.ID, "hidden", "", true)
	require.NoError(t, err)

	available, err := svc.Available(ctx, browser.ID, "")
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, open.ID, available[0].ID)

	myRooms, err := svc.MyRooms(ctx, browser.ID)
	require.NoError(t, err)
	require.Len(t, myRooms, 1)
	assert.Equal(t, mine.ID, myRooms[0].ID)
}

func TestMembersRequiresMembership(t *testing.T) {
	svc, _, users := newRoomFixture()
	owner := users.add("owner", "owner@test.io")
	outsider := users.add("mallory", "mallory@test.io")
	ctx := context.Background()

	room, err := svc.Create(ctx, owner.ID, "general", "", false)
	require.NoError(t, err)

	_, err = svc.Members(ctx, room.ID, outsider.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	members, err := svc.Members(ctx, room.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "owner", members[0].Username)
	assert.Equal(t, models.RoleOwner, members[0].Role)
}

func TestMembersOverlayLivePresence(t *testing.T) {
	svc, pres, users := newRoomFixture()
	owner := users.add("owner", "owner@test.io")
	ctx := context.Background()

	room, err := svc.Create(ctx, owner.ID, "general", "", false)
	require.NoError(t, err)

	// user document still says offline, redis has the live status
	require.NoError(t, pres.MarkOnline(ctx, owner.ID.Hex()))

	members, err := svc.Members(ctx, room.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.True(t, members[0].IsOnline)
	assert.False(t, members[0].LastSeen.IsZero())

	require.NoError(t, pres.MarkOffline(ctx, owner.ID.Hex()))
	members, err = svc.Members(ctx, room.ID, owner.ID)
	require.NoError(t, err)
	assert.False(t, members[0].IsOnline)
}

package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/KaranNegi08/chatZila/internal/apperr"
	"github.com/KaranNegi08/chatZila/internal/models"
	"github.com/KaranNegi08/chatZila/internal/presence"
)

// In-memory stand-ins for the mongo repositories. Each guards its state
// with a mutex and mirrors the conditional-update semantics of the real
// implementations, so the race-safety tests are meaningful.

type fakeUsers struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[primitive.ObjectID]*models.User)}
}

func (f *fakeUsers) add(username, email string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &models.User{ID: primitive.NewObjectID(), Username: username, Email: email}
	f.users[u.ID] = u
	return u
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = primitive.NewObjectID()
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsers) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, apperr.NotFound("user not found")
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (f *fakeUsers) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[primitive.ObjectID]*models.User)
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (f *fakeUsers) SetOnline(_ context.Context, id primitive.ObjectID, online bool, lastSeen time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.IsOnline = online
		u.LastSeen = lastSeen
	}
	return nil
}

type fakeRooms struct {
	mu    sync.Mutex
	rooms map[primitive.ObjectID]*models.Room
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{rooms: make(map[primitive.ObjectID]*models.Room)}
}

func (f *fakeRooms) Create(_ context.Context, r *models.Room) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	f.rooms[r.ID] = r
	cp := *r
	return &cp, nil
}

func (f *fakeRooms) FindByID(_ context.Context, id primitive.ObjectID) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[id]; ok {
		cp := *r
		cp.Members = append([]models.Membership(nil), r.Members...)
		return &cp, nil
	}
	return nil, apperr.NotFound("room not found")
}

func (f *fakeRooms) FindByMember(_ context.Context, userID primitive.ObjectID) ([]*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Room
	for _, r := range f.rooms {
		if r.HasMember(userID) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeRooms) FindAvailable(_ context.Context, userID primitive.ObjectID, search string, limit int64) ([]*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Room
	for _, r := range f.rooms {
		if r.IsPrivate || r.HasMember(userID) {
			continue
		}
		cp := *r
		out = append(out, &cp)
		if int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRooms) IsMember(_ context.Context, roomID, userID primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return false, nil
	}
	return r.HasMember(userID), nil
}

func (f *fakeRooms) AddMember(_ context.Context, roomID primitive.ObjectID, m models.Membership) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return false, nil
	}
	if r.HasMember(m.UserID) {
		return false, nil
	}
	r.Members = append(r.Members, m)
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (f *fakeRooms) TouchActivity(_ context.Context, roomID primitive.ObjectID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[roomID]; ok {
		r.UpdatedAt = at
	}
	return nil
}

type fakeMessages struct {
	mu   sync.Mutex
	msgs []*models.Message
}

func newFakeMessages() *fakeMessages { return &fakeMessages{} }

func (f *fakeMessages) Insert(_ context.Context, m *models.Message) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = primitive.NewObjectID()
	m.CreatedAt = time.Now().UTC()
	if m.Reactions == nil {
		m.Reactions = []models.Reaction{}
	}
	cp := *m
	f.msgs = append(f.msgs, &cp)
	return m, nil
}

func (f *fakeMessages) FindByID(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID == id {
			cp := *m
			cp.Reactions = append([]models.Reaction(nil), m.Reactions...)
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("message not found")
}

func (f *fakeMessages) FindByRoom(_ context.Context, roomID primitive.ObjectID, page, limit int64) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var inRoom []*models.Message
	for _, m := range f.msgs {
		if m.RoomID == roomID {
			cp := *m
			inRoom = append(inRoom, &cp)
		}
	}
	// newest first, like the mongo query
	sort.Slice(inRoom, func(i, j int) bool { return inRoom[i].CreatedAt.After(inRoom[j].CreatedAt) })
	start := (page - 1) * limit
	if start >= int64(len(inRoom)) {
		return nil, nil
	}
	end := start + limit
	if end > int64(len(inRoom)) {
		end = int64(len(inRoom))
	}
	return inRoom[start:end], nil
}

func (f *fakeMessages) SetContent(_ context.Context, id, senderID primitive.ObjectID, content string, editedAt time.Time) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID == id && m.SenderID == senderID {
			m.Content = content
			m.IsEdited = true
			m.EditedAt = editedAt
			cp := *m
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("message not found")
}

func (f *fakeMessages) Delete(_ context.Context, id, senderID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.msgs {
		if m.ID == id && m.SenderID == senderID {
			f.msgs = append(f.msgs[:i], f.msgs[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("message not found")
}

func (f *fakeMessages) ToggleReaction(_ context.Context, id, userID primitive.ObjectID, emoji string) ([]models.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID != id {
			continue
		}
		for i, r := range m.Reactions {
			if r.UserID == userID && r.Emoji == emoji {
				m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
				return append([]models.Reaction(nil), m.Reactions...), nil
			}
		}
		m.Reactions = append(m.Reactions, models.Reaction{
			UserID: userID, Emoji: emoji, CreatedAt: time.Now().UTC(),
		})
		return append([]models.Reaction(nil), m.Reactions...), nil
	}
	return nil, apperr.NotFound("message not found")
}

type fakePresence struct {
	mu       sync.Mutex
	statuses map[string]presence.Status
}

func newFakePresence() *fakePresence {
	return &fakePresence{statuses: make(map[string]presence.Status)}
}

func (f *fakePresence) MarkOnline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[userID] = presence.Status{Online: true, LastSeen: time.Now().UTC()}
	return nil
}

func (f *fakePresence) Refresh(context.Context, string) error { return nil }

func (f *fakePresence) MarkOffline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[userID] = presence.Status{Online: false, LastSeen: time.Now().UTC()}
	return nil
}

func (f *fakePresence) Get(_ context.Context, userID string) (presence.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[userID], nil
}

type fakeNotifs struct {
	mu     sync.Mutex
	notifs []*models.Notification
}

func newFakeNotifs() *fakeNotifs { return &fakeNotifs{} }

// CreatePendingOnce mirrors the atomic upsert: the duplicate scan and
// the append happen under one lock.
func (f *fakeNotifs) CreatePendingOnce(_ context.Context, n *models.Notification) (*models.Notification, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.notifs {
		if existing.Type != n.Type || existing.ActionTaken != models.ActionPending {
			continue
		}
		if existing.Data.RoomID == nil || n.Data.RoomID == nil || *existing.Data.RoomID != *n.Data.RoomID {
			continue
		}
		if n.Type == models.NotifJoinRequest {
			if existing.SenderID == n.SenderID {
				return nil, false, nil
			}
		} else if existing.RecipientID == n.RecipientID {
			return nil, false, nil
		}
	}
	n.ID = primitive.NewObjectID()
	n.ActionTaken = models.ActionPending
	n.IsRead = false
	n.CreatedAt = time.Now().UTC()
	cp := *n
	f.notifs = append(f.notifs, &cp)
	return n, true, nil
}

func (f *fakeNotifs) FindByID(_ context.Context, id primitive.ObjectID) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifs {
		if n.ID == id {
			cp := *n
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("notification not found")
}

func (f *fakeNotifs) FindByRecipient(_ context.Context, recipientID primitive.ObjectID, page, limit int64, unreadOnly bool) ([]*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Notification
	for _, n := range f.notifs {
		if n.RecipientID != recipientID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	start := (page - 1) * limit
	if start >= int64(len(out)) {
		return nil, nil
	}
	end := start + limit
	if end > int64(len(out)) {
		end = int64(len(out))
	}
	return out[start:end], nil
}

func (f *fakeNotifs) CountUnread(_ context.Context, recipientID primitive.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, notif := range f.notifs {
		if notif.RecipientID == recipientID && !notif.IsRead {
			n++
		}
	}
	return n, nil
}

// Resolve mirrors the compare-and-swap: pending is required under the
// same lock that flips the state.
func (f *fakeNotifs) Resolve(_ context.Context, id primitive.ObjectID, state models.ActionState) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifs {
		if n.ID == id {
			if n.ActionTaken != models.ActionPending {
				return false, nil
			}
			n.ActionTaken = state
			n.IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeNotifs) MarkRead(_ context.Context, id, recipientID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifs {
		if n.ID == id && n.RecipientID == recipientID {
			n.IsRead = true
			return nil
		}
	}
	return apperr.NotFound("notification not found")
}

func (f *fakeNotifs) MarkAllRead(_ context.Context, recipientID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifs {
		if n.RecipientID == recipientID {
			n.IsRead = true
		}
	}
	return nil
}

package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Gopher0727/StaffPortal/internal/models"
)

func requireValidation(t *testing.T, err error, want string) {
	t.Helper()
	msg, ok := IsValidation(err)
	require.True(t, ok, "expected ValidationError, got %v", err)
	assert.Equal(t, want, msg)
}

func TestCreateGroupWithMessage(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "Alice", "Archer")
	bob := f.user(t, "Bob", "Baker")
	carol := f.user(t, "Carol", "Cook")
	svc := f.messageService(MessageServiceOptions{})

	group, msg, err := svc.CreateGroupWithMessage(ctx, alice.ID, &CreateGroupRequest{
		Name:         "Lunch",
		RecipientIDs: ids(bob, carol),
		Body:         "Hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "Lunch", group.Name)
	assert.Equal(t, group.ID, msg.GroupID)
	assert.Equal(t, alice.ID, msg.SenderID)

	names, err := svc.CombinedNames(ctx, group.ID, carol.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "Alice Archer, Bob Baker, Carol Cook", names)

	for _, u := range []*models.User{bob, carol} {
		n, err := svc.UnreadCountFor(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		unread, err := svc.GroupHasUnread(ctx, group.ID, u.ID)
		require.NoError(t, err)
		assert.True(t, unread)
	}

	latest, err := svc.LatestMessage(ctx, group.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, msg.ID, latest.ID)

	require.NoError(t, svc.MarkRead(ctx, msg.ID, bob.ID))
	require.NoError(t, svc.MarkRead(ctx, msg.ID, bob.ID))

	n, err := svc.UnreadCountFor(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = svc.UnreadCountFor(ctx, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	summaries, err := svc.ListGroupsForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, group.ID, summaries[0].ID)
	assert.False(t, summaries[0].HasUnread)
	assert.Equal(t, "Hi", summaries[0].Preview)
	assert.Equal(t, "Alice Archer, Bob Baker, Carol Cook", summaries[0].Names)
	assert.Equal(t, []uint{alice.ID, bob.ID, carol.ID}, summaries[0].MemberIDs)
}

func TestCreateGroupWithMessage_Validation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "Alice", "Archer")
	bob := f.user(t, "Bob", "Baker")
	svc := f.messageService(MessageServiceOptions{})

	tests := []struct {
		name string
		req  CreateGroupRequest
		want string
	}{
		{"missing name", CreateGroupRequest{RecipientIDs: ids(bob), Body: "hi"}, MsgAllFieldsRequired},
		{"blank name", CreateGroupRequest{Name: "   ", RecipientIDs: ids(bob), Body: "hi"}, MsgAllFieldsRequired},
		{"no recipients", CreateGroupRequest{Name: "g", Body: "hi"}, MsgAllFieldsRequired},
		{"missing body", CreateGroupRequest{Name: "g", RecipientIDs: ids(bob)}, MsgAllFieldsRequired},
		{"non numeric recipients", CreateGroupRequest{Name: "g", RecipientIDs: []string{"abc", "-1", "0", ""}, Body: "hi"}, MsgInvalidRecipient},
		{"unknown recipient", CreateGroupRequest{Name: "g", RecipientIDs: []string{"999"}, Body: "hi"}, MsgUserNotFound},
		{"name too long", CreateGroupRequest{Name: strings.Repeat("n", models.MaxGroupNameLength+1), RecipientIDs: ids(bob), Body: "hi"}, MsgGroupNameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.CreateGroupWithMessage(ctx, alice.ID, &tt.req)
			requireValidation(t, err, tt.want)
		})
	}

	assert.Zero(t, f.count(t, &models.MessageGroup{}))
	assert.Zero(t, f.count(t, &models.GroupMember{}))
	assert.Zero(t, f.count(t, &models.Message{}))

	t.Run("name at the limit", func(t *testing.T) {
		name := strings.Repeat("界", models.MaxGroupNameLength)
		group, _, err := svc.CreateGroupWithMessage(ctx, alice.ID, &CreateGroupRequest{Name: name, RecipientIDs: ids(bob), Body: "hi"})
		require.NoError(t, err)
		assert.Equal(t, name, group.Name)
	})

	t.Run("unknown ids are dropped", func(t *testing.T) {
		group, _, err := svc.CreateGroupWithMessage(ctx, alice.ID, &CreateGroupRequest{
			Name:         "partial",
			RecipientIDs: append([]string{"999", "oops"}, ids(bob, bob)...),
			Body:         "hi",
		})
		require.NoError(t, err)

		members, err := f.groups.Members(ctx, group.ID)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, alice.ID, members[0].ID)
		assert.Equal(t, bob.ID, members[1].ID)
	})
}

func TestCreateGroupWithMessage_Atomic(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "Alice", "Archer")
	bob := f.user(t, "Bob", "Baker")
	svc := f.messageService(MessageServiceOptions{})

	err := f.db.Callback().Create().Before("gorm:create").Register("test:fail_messages", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "messages" {
			_ = tx.AddError(errors.New("disk full"))
		}
	})
	require.NoError(t, err)

	_, _, err = svc.CreateGroupWithMessage(ctx, alice.ID, &CreateGroupRequest{Name: "doomed", RecipientIDs: ids(bob), Body: "hi"})
	requireValidation(t, err, MsgGenericFailure)

	assert.Zero(t, f.count(t, &models.MessageGroup{}))
	assert.Zero(t, f.count(t, &models.GroupMember{}))
	assert.Zero(t, f.count(t, &models.Message{}))
	assert.Zero(t, f.count(t, &models.MessageRead{}))
}

func TestSenderAutoRead(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "Alice", "Archer")
	bob := f.user(t, "Bob", "Baker")

	t.Run("off", func(t *testing.T) {
		svc := f.messageService(MessageServiceOptions{SenderAutoRead: false})
		group, msg, err := svc.CreateGroupWithMessage(ctx, alice.ID, &CreateGroupRequest{Name: "off", RecipientIDs: ids(bob), Body: "hi"})
		require.NoError(t, err)

		readers, err := f.messages.ReadBy(ctx, msg.ID)
		require.NoError(t, err)
		assert.Empty(t, readers)

		unread, err := svc.GroupHasUnread(ctx, group.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, unread)
	})

	t.Run("on", func(t *testing.T) {
		svc := f.messageService(MessageServiceOptions{SenderAutoRead: true})
		group, msg, err := svc.CreateGroupWithMessage(ctx, alice.ID, &CreateGroupRequest{Name: "on", RecipientIDs: ids(bob), Body: "hi"})
		require.NoError(t, err)

		readers, err := f.messages.ReadBy(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint{alice.ID}, readers)

		unread, err := svc.GroupHasUnread(ctx, group.ID, alice.ID)
		require.NoError(t, err)
		assert.False(t, unread)

		reply, err := svc.PostMessage(ctx, group.ID, bob.ID, "hello back", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		readers, err = f.messages.ReadBy(ctx, reply.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint{bob.ID}, readers)

		unread, err = svc.GroupHasUnread(ctx, group.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, unread, "alice's opening message is still unread for bob")
	})
}

func TestPostMessage(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "Alice", "Archer")
	bob := f.user(t, "Bob", "Baker")
	eve := f.user(t, "Eve", "Evans")
	svc := f.messageService(MessageServiceOptions{})

	group, first, err := svc.CreateGroupWithMessage(ctx, alice.ID, &CreateGroupRequest{Name: "g", RecipientIDs: ids(bob), Body: "first"})
	require.NoError(t, err)
	at := first.Date.Add(time.Minute)

	t.Run("validation", func(t *testing.T) {
		_, err := svc.PostMessage(ctx, group.ID, bob.ID, "  ", at)
		requireValidation(t, err, MsgEmptyBody)

		_, err = svc.PostMessage(ctx, group.ID, bob.ID, "hi", time.Time{})
		requireValidation(t, err, MsgMissingTimestamp)
	})

	t.Run("membership", func(t *testing.T) {
		_, err := svc.PostMessage(ctx, group.ID, eve.ID, "let me in", at)
		assert.ErrorIs(t, err, ErrNotMember)

		_, err = svc.PostMessage(ctx, 999, bob.ID, "hello?", at)
		assert.ErrorIs(t, err, ErrGroupNotFound)
	})

	t.Run("append only", func(t *testing.T) {
		second, err := svc.PostMessage(ctx, group.ID, bob.ID, "second", at)
		require.NoError(t, err)
		assert.True(t, at.Equal(second.Date))

		stored, err := f.messages.GetByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "first", stored.Body)

		latest, err := svc.LatestMessage(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)

		// 标记一条之后仍有另一条未读
		require.NoError(t, svc.MarkRead(ctx, second.ID, alice.ID))
		unread, err := svc.GroupHasUnread(ctx, group.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, unread)

		require.NoError(t, svc.MarkRead(ctx, first.ID, alice.ID))
		unread, err = svc.GroupHasUnread(ctx, group.ID, alice.ID)
		require.NoError(t, err)
		assert.False(t, unread)
	})

	t.Run("back dated message is not latest", func(t *testing.T) {
		old, err := svc.PostMessage(ctx, group.ID, bob.ID, "from the past", first.Date.Add(-time.Hour))
		require.NoError(t, err)

		latest, err := svc.LatestMessage(ctx, group.ID)
		require.NoError(t, err)
		assert.NotEqual(t, old.ID, latest.ID)
	})
}

func TestLatestMessage_EmptyGroup(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "Alice", "Archer")
	bob := f.user(t, "Bob", "Baker")
	svc := f.messageService(MessageServiceOptions{})

	group, err := svc.CreateGroup(ctx, alice.ID, "quiet", []uint{bob.ID})
	require.NoError(t, err)

	latest, err := svc.LatestMessage(ctx, group.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	unread, err := svc.GroupHasUnread(ctx, group.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, unread)
}

func TestCreateGroup_Validation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "Alice", "Archer")
	svc := f.messageService(MessageServiceOptions{})

	_, err := svc.CreateGroup(ctx, alice.ID, "", []uint{alice.ID})
	requireValidation(t, err, MsgAllFieldsRequired)

	_, err = svc.CreateGroup(ctx, alice.ID, "g", []uint{404, 405})
	requireValidation(t, err, MsgUserNotFound)

	_, err = svc.CreateGroup(ctx, alice.ID, strings.Repeat("x", 141), []uint{alice.ID})
	requireValidation(t, err, MsgGroupNameTooLong)

	assert.Zero(t, f.count(t, &models.MessageGroup{}))
}

func TestMarkRead_UnknownMessage(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "Alice", "Archer")
	svc := f.messageService(MessageServiceOptions{})

	assert.ErrorIs(t, svc.MarkRead(ctx, 12345, alice.ID), ErrMessageNotFound)
}

func TestMarkGroupRead(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "Alice", "Archer")
	bob := f.user(t, "Bob", "Baker")
	eve := f.user(t, "Eve", "Evans")
	svc := f.messageService(MessageServiceOptions{})

	group, first, err := svc.CreateGroupWithMessage(ctx, alice.ID, &CreateGroupRequest{Name: "g", RecipientIDs: ids(bob), Body: "one"})
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, group.ID, alice.ID, "two", first.Date.Add(time.Second))
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(ctx, first.ID, bob.ID))

	n, err := svc.MarkGroupRead(ctx, group.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.MarkGroupRead(ctx, group.ID, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := svc.UnreadCountFor(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = svc.MarkGroupRead(ctx, group.ID, eve.ID)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestAddMembers(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "Alice", "Archer")
	bob := f.user(t, "Bob", "Baker")
	carol := f.user(t, "Carol", "Cook")
	dave := f.user(t, "Dave", "Dunn")
	erin := f.user(t, "Erin", "Ellis")
	mallory := f.user(t, "Mallory", "Moss")
	pub := &recordingPublisher{}
	svc := f.messageService(MessageServiceOptions{Events: pub})

	group, err := svc.CreateGroup(ctx, alice.ID, "team", []uint{bob.ID})
	require.NoError(t, err)

	added, err := svc.AddMembers(ctx, bob.ID, group.ID, []uint{carol.ID, dave.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)

	added, err = svc.AddMembers(ctx, alice.ID, group.ID, []uint{carol.ID, dave.ID, erin.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), added)

	added, err = svc.AddMembers(ctx, alice.ID, group.ID, []uint{erin.ID})
	require.NoError(t, err)
	assert.Zero(t, added)

	_, err = svc.AddMembers(ctx, alice.ID, group.ID, []uint{999})
	requireValidation(t, err, MsgUserNotFound)

	_, err = svc.AddMembers(ctx, mallory.ID, group.ID, []uint{mallory.ID})
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = svc.AddMembers(ctx, alice.ID, 999, []uint{mallory.ID})
	assert.ErrorIs(t, err, ErrGroupNotFound)

	short, err := svc.CombinedNames(ctx, group.ID, alice.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "Alice Archer, Bob Baker, Carol Cook and 2 others", short)

	full, err := svc.CombinedNames(ctx, group.ID, erin.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "Alice Archer, Bob Baker, Carol Cook, Dave Dunn, Erin Ellis", full)

	_, err = svc.CombinedNames(ctx, 999, alice.ID, true)
	assert.ErrorIs(t, err, ErrGroupNotFound)

	// 非成员看不到成员名单
	_, err = svc.CombinedNames(ctx, group.ID, mallory.ID, true)
	assert.ErrorIs(t, err, ErrNotMember)

	assert.Equal(t, []string{EventGroupCreated, EventMembersAdded, EventMembersAdded}, pub.types())
}

func TestListGroupsForUser_Ordering(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "Alice", "Archer")
	bob := f.user(t, "Bob", "Baker")
	svc := f.messageService(MessageServiceOptions{})
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	emptyOld, err := svc.CreateGroup(ctx, alice.ID, "empty-old", []uint{bob.ID})
	require.NoError(t, err)
	a, err := svc.CreateGroup(ctx, alice.ID, "a", []uint{bob.ID})
	require.NoError(t, err)
	b, err := svc.CreateGroup(ctx, alice.ID, "b", []uint{bob.ID})
	require.NoError(t, err)
	emptyNew, err := svc.CreateGroup(ctx, alice.ID, "empty-new", []uint{bob.ID})
	require.NoError(t, err)

	// a 的消息先发送但日期更晚
	_, err = svc.PostMessage(ctx, a.ID, alice.ID, "later date", base.Add(30*time.Second))
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, b.ID, bob.ID, "earlier date", base.Add(20*time.Second))
	require.NoError(t, err)

	summaries, err := svc.ListGroupsForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 4)

	got := []uint{summaries[0].ID, summaries[1].ID, summaries[2].ID, summaries[3].ID}
	assert.Equal(t, []uint{a.ID, b.ID, emptyNew.ID, emptyOld.ID}, got)

	assert.Equal(t, "later date", summaries[0].Preview)
	assert.True(t, summaries[0].HasUnread)
	assert.Nil(t, summaries[2].LatestMessage)
	assert.Nil(t, summaries[3].LatestMessage)
	assert.False(t, summaries[3].HasUnread)
	assert.Empty(t, summaries[3].Preview)

	none, err := svc.ListGroupsForUser(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGroupsBefore(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	withMsg := func(id, msgID uint, at time.Time) *GroupSummary {
		return &GroupSummary{ID: id, LatestMessage: &models.Message{ID: msgID, Date: at}}
	}
	empty := func(id uint, created time.Time) *GroupSummary {
		return &GroupSummary{ID: id, CreatedAt: created}
	}

	assert.True(t, groupsBefore(withMsg(1, 1, t0.Add(time.Second)), withMsg(2, 2, t0)))
	assert.True(t, groupsBefore(withMsg(1, 5, t0), withMsg(2, 4, t0)), "same date: higher message id first")
	assert.True(t, groupsBefore(withMsg(1, 1, t0), empty(2, t0.Add(time.Hour))))
	assert.False(t, groupsBefore(empty(2, t0.Add(time.Hour)), withMsg(1, 1, t0)))
	assert.True(t, groupsBefore(empty(1, t0.Add(time.Second)), empty(2, t0)))
	assert.True(t, groupsBefore(empty(3, t0), empty(2, t0)), "same creation time: higher id first")
}

func TestListMessages(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "Alice", "Archer")
	bob := f.user(t, "Bob", "Baker")
	eve := f.user(t, "Eve", "Evans")
	svc := f.messageService(MessageServiceOptions{PreviewLength: 4})

	group, first, err := svc.CreateGroupWithMessage(ctx, alice.ID, &CreateGroupRequest{Name: "g", RecipientIDs: ids(bob), Body: "message zero"})
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err := svc.PostMessage(ctx, group.ID, bob.ID, "reply", first.Date.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	page, err := svc.ListMessages(ctx, group.ID, alice.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].Date.After(page[1].Date))
	assert.Equal(t, "repl...", page[0].Preview)

	page, err = svc.ListMessages(ctx, group.ID, alice.ID, 0, 3)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)

	_, err = svc.ListMessages(ctx, group.ID, eve.ID, 10, 0)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestPreviewLength(t *testing.T) {
	f := newFixture(t)

	def := f.messageService(MessageServiceOptions{})
	body := strings.Repeat("a", 101)
	assert.Equal(t, strings.Repeat("a", 100)+"...", def.Preview(&models.Message{Body: body}))
	assert.Equal(t, "short", def.Preview(&models.Message{Body: "short"}))

	custom := f.messageService(MessageServiceOptions{PreviewLength: 5})
	assert.Equal(t, "abcde...", custom.Preview(&models.Message{Body: "abcdefgh"}))
	assert.Equal(t, "abcde", custom.Preview(&models.Message{Body: "abcde"}))
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "Alice", "Archer")
	bob := f.user(t, "Bob", "Baker")

	t.Run("published after commit", func(t *testing.T) {
		pub := &recordingPublisher{}
		svc := f.messageService(MessageServiceOptions{Events: pub})

		group, msg, err := svc.CreateGroupWithMessage(ctx, alice.ID, &CreateGroupRequest{Name: "g", RecipientIDs: ids(bob), Body: "hi"})
		require.NoError(t, err)
		_, err = svc.PostMessage(ctx, group.ID, bob.ID, "yo", msg.Date.Add(time.Second))
		require.NoError(t, err)

		assert.Equal(t, []string{EventGroupCreated, EventMessagePosted}, pub.types())
		assert.Equal(t, []uint{alice.ID, bob.ID}, pub.events[0].MemberIDs)
		assert.Equal(t, msg.ID, pub.events[0].MessageID)
	})

	t.Run("publisher failure does not fail the write", func(t *testing.T) {
		pub := &recordingPublisher{err: errors.New("broker down")}
		svc := f.messageService(MessageServiceOptions{Events: pub})

		_, _, err := svc.CreateGroupWithMessage(ctx, alice.ID, &CreateGroupRequest{Name: "g2", RecipientIDs: ids(bob), Body: "hi"})
		require.NoError(t, err)
		assert.Len(t, pub.types(), 1)
	})

	t.Run("nothing published on validation failure", func(t *testing.T) {
		pub := &recordingPublisher{}
		svc := f.messageService(MessageServiceOptions{Events: pub})

		_, _, err := svc.CreateGroupWithMessage(ctx, alice.ID, &CreateGroupRequest{Name: "g3", RecipientIDs: []string{"999"}, Body: "hi"})
		require.Error(t, err)
		assert.Empty(t, pub.types())
	})
}

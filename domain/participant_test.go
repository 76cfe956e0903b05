package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParticipantKey_Is_Order_Independent(t *testing.T) {
	req := require.New(t)

	// Given the same participants listed in different orders
	a := ParticipantSet("u1", []UserID{"u3", "u2"})
	b := ParticipantSet("u3", []UserID{"u1", "u2", "u2"})

	// Then the canonical keys are equal
	req.Equal([]UserID{"u1", "u2", "u3"}, a)
	req.Equal(ParticipantKey(a), ParticipantKey(b))
	req.True(SameParticipants(a, b))
}

func TestParticipantKey_Differs_On_Single_Member(t *testing.T) {
	req := require.New(t)
	a := ParticipantSet("u1", []UserID{"u2"})
	b := ParticipantSet("u1", []UserID{"u2", "u3"})
	c := ParticipantSet("u1", []UserID{"u3"})

	req.NotEqual(ParticipantKey(a), ParticipantKey(b))
	req.NotEqual(ParticipantKey(a), ParticipantKey(c))
}

func TestParticipantKey_Ids_Containing_Separator(t *testing.T) {
	req := require.New(t)

	// Given two different sets whose plain joins would both read "a,b,c"
	left := ParticipantSet("c", []UserID{"a,b"})
	right := ParticipantSet("a", []UserID{"b,c"})

	// Then their keys still differ
	req.False(SameParticipants(left, right))
	req.NotEqual(ParticipantKey(left), ParticipantKey(right))
	req.Equal("3:a,b,1:c", ParticipantKey(left))
	req.Equal("1:a,3:b,c", ParticipantKey(right))
}

func TestParticipantSet_Requester_Implicitly_Added(t *testing.T) {
	req := require.New(t)
	req.Equal([]UserID{"u1", "u2"}, ParticipantSet("u2", []UserID{"u1"}))
	req.Equal([]UserID{"u1", "u2"}, ParticipantSet("u2", []UserID{"u1", "u2"}))
}

func TestSortMessages_By_Time_Then_ID(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()
	messages := []Message{
		{ID: "b", CreatedAt: at},
		{ID: "c", CreatedAt: at.Add(-time.Second)},
		{ID: "a", CreatedAt: at},
	}

	SortMessages(messages)

	req.Equal([]MessageID{"c", "a", "b"}, []MessageID{messages[0].ID, messages[1].ID, messages[2].ID})
	req.Equal(MessageID("b"), Latest(messages).ID)
	req.Nil(Latest(nil))
}

func TestEarliest_Converges_On_Lowest_CreatedAt_Then_ID(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()

	winner, ok := Earliest([]Conversation{
		{ID: "z", CreatedAt: at},
		{ID: "y", CreatedAt: at},
		{ID: "a", CreatedAt: at.Add(time.Millisecond)},
	})

	req.True(ok)
	req.Equal(ConversationID("y"), winner.ID)

	_, ok = Earliest(nil)
	req.False(ok)
}

func TestChannelName_RoundTrip(t *testing.T) {
	req := require.New(t)
	channel := ChannelName("42")
	req.Equal("user-42", channel)

	id, ok := UserFromChannel(channel)
	req.True(ok)
	req.Equal(UserID("42"), id)

	_, ok = UserFromChannel("room-42")
	req.False(ok)
}

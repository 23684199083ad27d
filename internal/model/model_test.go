package model

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/microblog/internal/store"
)

func TestUser_Validate(t *testing.T) {
	ok := &User{Username: "susan", Email: "susan@example.com"}
	assert.NoError(t, ok.Validate())

	assert.ErrorContains(t, (&User{Email: "a@b"}).Validate(), "username is required")
	assert.ErrorContains(t, (&User{Username: "x", Email: "nope"}).Validate(), "email")
	assert.ErrorContains(t, (&User{Username: strings.Repeat("u", 65), Email: "a@b"}).Validate(), "64")
	assert.ErrorContains(t, (&User{Username: "x", Email: "a@b", AboutMe: strings.Repeat("a", 141)}).Validate(), "about_me")
}

func TestPost_Validate(t *testing.T) {
	assert.NoError(t, NewPost(1, strings.Repeat("é", MaxBodyLen)).Validate())

	assert.ErrorContains(t, NewPost(1, "  ").Validate(), "body is required")
	assert.ErrorContains(t, NewPost(1, strings.Repeat("b", 141)).Validate(), "140")
	assert.ErrorContains(t, NewPost(0, "hi").Validate(), "user_id")
	assert.ErrorContains(t, (&Post{UserID: 1, Body: "hi", Language: "english"}).Validate(), "language")
}

func TestPost_SearchFields(t *testing.T) {
	p := &Post{Body: "hello"}

	assert.Equal(t, []string{"body"}, p.SearchableFields())
	v, ok := p.SearchField("body")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
	_, ok = p.SearchField("language")
	assert.False(t, ok)
}

func TestModels_RoundTripThroughStore(t *testing.T) {
	// Given: a user, a post and a message committed together
	db, err := store.Open("", store.Config{})
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	seen := time.Date(2026, 3, 1, 12, 30, 0, 123, time.UTC)
	u := &User{Username: "susan", Email: "susan@example.com", AboutMe: "hi", LastSeen: seen}
	s := db.Session()
	s.Add(u)
	require.NoError(t, s.Commit(ctx))

	p := &Post{Body: "hello", UserID: u.ID, Timestamp: seen, Language: "en"}
	m := &Message{SenderID: u.ID, RecipientID: u.ID, Body: "note to self", Timestamp: seen}
	s.Add(p)
	s.Add(m)
	require.NoError(t, s.Commit(ctx))

	// When: reading them back
	gotU, err := store.NewTable(db, func() *User { return &User{} }).Get(ctx, u.ID)
	require.NoError(t, err)
	gotP, err := store.NewTable(db, func() *Post { return &Post{} }).Get(ctx, p.ID)
	require.NoError(t, err)
	gotM, err := store.NewTable(db, func() *Message { return &Message{} }).Get(ctx, m.ID)
	require.NoError(t, err)

	// Then: every column survives, timestamps included
	assert.Equal(t, u, gotU)
	assert.Equal(t, p, gotP)
	assert.Equal(t, m, gotM)
}

func TestParseTime_Invalid(t *testing.T) {
	_, err := parseTime("yesterday")
	assert.ErrorContains(t, err, "parse timestamp")

	zero, err := parseTime("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
	assert.Empty(t, formatTime(time.Time{}))
}

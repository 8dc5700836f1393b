// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"realmsync.io/internal/model"
	"realmsync.io/internal/store"
)

// Suite runs against whatever Open returns. Backends embed it and set Open
// in their SetupTest before calling Suite.SetupTest.
type Suite struct {
	suite.Suite
	Open    func() store.Store
	Storage store.Store
	Ctx     context.Context
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.Open, "Open must be set")
	s.Storage = s.Open()
	s.Ctx = context.Background()
}

func (s *Suite) TearDownTest() {
	if s.Storage != nil {
		_ = s.Storage.Close()
	}
}

// Player tests

func (s *Suite) TestSaveAndLoadPlayer() {
	p := model.NewPlayerState("player-1", "Alice")
	p.Position = model.Vec3{X: 1, Y: 2, Z: 3}
	p.Gold = 250
	p.AddItems([]string{"sword", "apple"})

	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, p))

	got, err := s.Storage.LoadPlayer(s.Ctx, "player-1")
	s.Require().NoError(err)
	s.Equal("Alice", got.Username)
	s.Equal(p.Position, got.Position)
	s.Equal(int64(250), got.Gold)
	s.Equal([]string{"apple", "sword"}, got.Items)
}

func (s *Suite) TestLoadPlayerNotFound() {
	_, err := s.Storage.LoadPlayer(s.Ctx, "nonexistent")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestSavePlayerOverwrites() {
	p := model.NewPlayerState("player-1", "Alice")
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, p))
	p.Gold = 7
	p.Items = []string{}
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, p))

	got, err := s.Storage.LoadPlayer(s.Ctx, "player-1")
	s.Require().NoError(err)
	s.Equal(int64(7), got.Gold)
	s.NotNil(got.Items)
	s.Empty(got.Items)
}

// Account tests

func (s *Suite) TestAccountLookupIsCaseInsensitive() {
	acc := model.Account{PlayerID: "p1", Username: "Alice", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	s.Require().NoError(s.Storage.SaveAccount(s.Ctx, acc))

	got, err := s.Storage.AccountByUsername(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal("p1", got.PlayerID)
	s.Equal("hash", got.PasswordHash)
}

func (s *Suite) TestAccountUsernameTaken() {
	s.Require().NoError(s.Storage.SaveAccount(s.Ctx, model.Account{PlayerID: "p1", Username: "alice", PasswordHash: "a"}))

	err := s.Storage.SaveAccount(s.Ctx, model.Account{PlayerID: "p2", Username: "ALICE", PasswordHash: "b"})
	s.ErrorIs(err, model.ErrUsernameTaken)

	// Same owner may rotate the password.
	s.Require().NoError(s.Storage.SaveAccount(s.Ctx, model.Account{PlayerID: "p1", Username: "alice", PasswordHash: "c"}))
	got, err := s.Storage.AccountByUsername(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal("c", got.PasswordHash)
}

func (s *Suite) TestAccountNotFound() {
	_, err := s.Storage.AccountByUsername(s.Ctx, "nobody")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

// Friendship tests

func (s *Suite) TestFriendshipsBothDirections() {
	now := time.Now().UTC()
	s.Require().NoError(s.Storage.SaveFriendship(s.Ctx, model.NewFriendship("p2", "p1", now)))
	s.Require().NoError(s.Storage.SaveFriendship(s.Ctx, model.NewFriendship("p1", "p3", now)))

	fs, err := s.Storage.Friendships(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Require().Len(fs, 2)
	s.Equal("p2", fs[0].Other("p1"))
	s.Equal("p3", fs[1].Other("p1"))

	fs, err = s.Storage.Friendships(s.Ctx, "p2")
	s.Require().NoError(err)
	s.Require().Len(fs, 1)
	s.Equal("p1", fs[0].Other("p2"))
}

func (s *Suite) TestSaveFriendshipIsIdempotent() {
	now := time.Now().UTC()
	s.Require().NoError(s.Storage.SaveFriendship(s.Ctx, model.NewFriendship("p1", "p2", now)))
	s.Require().NoError(s.Storage.SaveFriendship(s.Ctx, model.NewFriendship("p2", "p1", now)))

	fs, err := s.Storage.Friendships(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Len(fs, 1)
}

func (s *Suite) TestDeleteFriendship() {
	s.Require().NoError(s.Storage.SaveFriendship(s.Ctx, model.NewFriendship("p1", "p2", time.Now())))
	s.Require().NoError(s.Storage.DeleteFriendship(s.Ctx, "p2", "p1"))

	fs, err := s.Storage.Friendships(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Empty(fs)
	fs, err = s.Storage.Friendships(s.Ctx, "p2")
	s.Require().NoError(err)
	s.Empty(fs)
}

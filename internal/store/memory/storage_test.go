package memory

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"realmsync.io/internal/model"
	"realmsync.io/internal/store"
	"realmsync.io/internal/store/storetest"
)

type StorageSuite struct {
	storetest.Suite
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.Open = func() store.Store { return New() }
	s.Suite.SetupTest()
}

func (s *StorageSuite) TestLoadReturnsCopy() {
	p := model.NewPlayerState("p1", "Alice")
	p.Items = []string{"a"}
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, p))

	got, err := s.Storage.LoadPlayer(s.Ctx, "p1")
	s.Require().NoError(err)
	got.Items[0] = "mutated"

	again, err := s.Storage.LoadPlayer(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Equal([]string{"a"}, again.Items)
}

package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"realmsync.io/internal/model"
	"realmsync.io/internal/store"
	"realmsync.io/internal/store/storetest"
)

type StorageSuite struct {
	storetest.Suite
	path string
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "realm.sqlite")
	s.Open = func() store.Store {
		st, err := Open(s.path)
		s.Require().NoError(err)
		return st
	}
	s.Suite.SetupTest()
}

func (s *StorageSuite) TestSurvivesReopen() {
	p := model.NewPlayerState("p1", "Alice")
	p.Gold = 42
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, p))
	s.Require().NoError(s.Storage.Close())

	st, err := Open(s.path)
	s.Require().NoError(err)
	s.Storage = st

	got, err := st.LoadPlayer(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Equal(int64(42), got.Gold)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

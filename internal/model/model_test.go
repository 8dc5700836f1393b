package model

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realmsync.io/internal/protocol"
)

func TestNormalizeItems(t *testing.T) {
	got := NormalizeItems([]string{"b", "", "a", "b"})
	assert.Equal(t, []string{"a", "b"}, got)
	assert.NotNil(t, NormalizeItems(nil))
}

func TestPlayerState_Items(t *testing.T) {
	p := NewPlayerState("p1", "Alice")
	p.AddItems([]string{"sword", "apple", "sword"})
	assert.Equal(t, []string{"apple", "sword"}, p.Items)
	assert.True(t, p.HasItems([]string{"apple", "sword"}))
	assert.False(t, p.HasItems([]string{"apple", "shield"}))

	c := p.Clone()
	p.RemoveItems([]string{"apple"})
	assert.Equal(t, []string{"sword"}, p.Items)
	assert.Equal(t, []string{"apple", "sword"}, c.Items)
}

func TestVec3(t *testing.T) {
	assert.InDelta(t, 5.0, Distance(Vec3{X: 3, Z: 4}, Vec3{}), 1e-9)
	assert.True(t, Vec3{X: 1}.Finite())
	assert.False(t, Vec3{Y: math.NaN()}.Finite())
	assert.False(t, Vec3{Z: math.Inf(1)}.Finite())
	assert.Equal(t, [3]float64{1, 2, 3}, Vec3From([3]float64{1, 2, 3}).Array())
}

func TestFriendship_Ordered(t *testing.T) {
	f := NewFriendship("zed", "amy", time.Time{})
	assert.Equal(t, "amy", f.A)
	assert.Equal(t, "zed", f.B)
	assert.Equal(t, "amy", f.Other("zed"))
	assert.Equal(t, "zed", f.Other("amy"))
}

func TestError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("party: %w", Wrap(ErrPartyFull, "party p1 is full"))
	assert.ErrorIs(t, err, ErrPartyFull)
	assert.NotErrorIs(t, err, ErrAlreadyQueued)

	e := AsError(err)
	assert.Equal(t, KindConflict, e.Kind)
	assert.Equal(t, protocol.ErrPartyFull, e.Code)
	assert.Equal(t, "E_PARTY_FULL: party p1 is full", e.Error())
}

func TestAsError_UnknownIsInternal(t *testing.T) {
	e := AsError(errors.New("boom"))
	require.NotNil(t, e)
	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, protocol.ErrInternal, e.Code)
}

func TestSentinelCodesAreKnown(t *testing.T) {
	for _, e := range []*Error{
		ErrAuth, ErrValidation, ErrNotFound, ErrStale, ErrInvalidTarget, ErrPermission,
		ErrRateLimited, ErrAlreadyQueued, ErrPartyFull, ErrAlreadyInParty, ErrTradeActive,
		ErrAlreadyGuilded, ErrNameTaken, ErrDuplicateRequest, ErrDuplicateInvite,
		ErrUsernameTaken, ErrMovement, ErrOutOfRange, ErrQueueType, ErrNoResource,
	} {
		assert.True(t, protocol.IsKnownCode(e.Code), e.Code)
	}
}

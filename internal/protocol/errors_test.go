package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrUnknownType,
		ErrAuth,
		ErrBadRequest,
		ErrNoPermission,
		ErrInvalidTarget,
		ErrRateLimit,
		ErrConflict,
		ErrStale,
		ErrNotFound,
		ErrInternal,
		ErrAlreadyQueued,
		ErrPartyFull,
		ErrTradeActive,
		ErrAlreadyGuilded,
		ErrDuplicateRequest,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestDecode_RequiresType(t *testing.T) {
	if _, err := Decode([]byte(`{"data":{}}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed json")
	}
	env, err := Decode([]byte(`{"type":"move","data":{"pos":[1,2,3],"moving":true}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var mv MoveReq
	if err := DecodeData(env, &mv); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if mv.Pos != [3]float64{1, 2, 3} || !mv.Moving {
		t.Fatalf("unexpected move payload: %+v", mv)
	}
}

func TestDecodeData_AbsentPayloadKeepsZero(t *testing.T) {
	env, err := Decode([]byte(`{"type":"party_create"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var ref PlayerRef
	if err := DecodeData(env, &ref); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if ref.PlayerID != "" {
		t.Fatalf("expected zero value, got %+v", ref)
	}
}

package locale

import (
	"testing"

	"wafra.app/internal/api"
)

func TestForKind(t *testing.T) {
	cases := []struct {
		kind api.Kind
		want string
	}{
		{api.KindAuthInvalid, MsgWrongCredentials},
		{api.KindEmailUnconfirmed, MsgEmailUnconfirmed},
		{api.KindRateLimited, MsgTooManyAttempts},
		{api.KindTimeout, MsgOperationTimedOut},
		{api.KindCanceled, MsgOperationCanceled},
		{api.KindNetwork, MsgNetworkProblem},
		{api.KindServer, MsgServerProblem},
		{api.Kind("something-new"), MsgGeneric},
	}
	for _, c := range cases {
		if got := ForKind(c.kind); got != c.want {
			t.Fatalf("ForKind(%s) = %q, want %q", c.kind, got, c.want)
		}
	}
}

func TestForError(t *testing.T) {
	err := &api.Error{Kind: api.KindTimeout, Message: "deadline exceeded"}
	if got := ForError(err); got != MsgOperationTimedOut {
		t.Fatalf("got %q", got)
	}
	// Raw provider text must never leak through.
	if got := ForError(err); got == err.Message {
		t.Fatal("provider text leaked to the user")
	}
}

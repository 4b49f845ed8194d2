package core

import (
	"errors"
	"testing"
)

func TestAllowlistAuthorizerAuthorize(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{
		"web": {"ci", "ops"},
	})
	if err := a.Authorize(Subject{Source: "web", ID: "ci"}, Action{Command: "versions"}); err != nil {
		t.Fatalf("expected allow, got error: %v", err)
	}
}

func TestAllowlistAuthorizerDenyUnknownID(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{
		"web": {"ci"},
	})
	err := a.Authorize(Subject{Source: "web", ID: "intruder"}, Action{Command: "versions"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAllowlistAuthorizerDenyUnknownSource(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{
		"web": {"ci"},
	})
	err := a.Authorize(Subject{Source: "ipc", ID: "ci"}, Action{Command: "versions"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAllowlistAuthorizerWildcard(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{
		"repl": {AnyID},
	})
	if err := a.Authorize(Subject{Source: "repl", ID: "alice"}, Action{Command: "help"}); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if err := a.Authorize(Subject{Source: "repl"}, Action{Command: "help"}); !errors.Is(err, errInvalidArguments) {
		t.Fatalf("expected errInvalidArguments for empty id, got %v", err)
	}
}

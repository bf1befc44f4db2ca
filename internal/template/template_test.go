package template

import (
	"errors"
	"testing"

	"github.com/kardosh/multisend/internal/model"
)

func TestRegistry_UnknownTemplate(t *testing.T) {
	t.Parallel()

	r := Builtin()
	_, err := r.Get("nope")
	if !errors.Is(err, model.ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
}

func TestRegistry_BuiltinNames(t *testing.T) {
	t.Parallel()

	r := Builtin()
	names := r.Names()
	want := map[string]bool{"text": true, "contact": true, "location": true}
	if len(names) != len(want) {
		t.Fatalf("expected %d builtins, got %v", len(want), names)
	}
	for _, n := range names {
		if !want[n] {
			t.Fatalf("unexpected builtin %q", n)
		}
	}
}

func TestBuildText(t *testing.T) {
	t.Parallel()

	r := Builtin()
	fn, err := r.Get("text")
	if err != nil {
		t.Fatalf("Get(text): %v", err)
	}

	p, err := fn("123@s.whatsapp.net", Params{Message: "hello"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Kind != "text" {
		t.Fatalf("kind = %q, want text", p.Kind)
	}
	if string(p.Body) != `{"text":"hello"}` {
		t.Fatalf("body = %s", p.Body)
	}

	if _, err := fn("123@s.whatsapp.net", Params{}); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestBuildContact_RequiresFields(t *testing.T) {
	t.Parallel()

	r := Builtin()
	fn, _ := r.Get("contact")

	if _, err := fn("x", Params{Extra: map[string]string{"name": "A"}}); err == nil {
		t.Fatal("expected error without phone")
	}
	p, err := fn("x", Params{Extra: map[string]string{"name": "A", "phone": "123"}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Kind != "contact" {
		t.Fatalf("kind = %q", p.Kind)
	}
}

func TestRegister_Replaces(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("custom", buildText)
	if _, err := r.Get("custom"); err != nil {
		t.Fatalf("expected custom registered, got %v", err)
	}
}

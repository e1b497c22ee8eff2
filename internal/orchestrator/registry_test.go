package orchestrator

import "testing"

type stubProbe struct {
	id          string
	ordinal     int
	requiresLLM bool
}

func (p *stubProbe) ID() string        { return p.id }
func (p *stubProbe) Title() string     { return p.id + " title" }
func (p *stubProbe) Ordinal() int      { return p.ordinal }
func (p *stubProbe) RequiresLLM() bool { return p.requiresLLM }
func (p *stubProbe) Run(ctx DiagnosticContext) ([]Finding, error) {
	return nil, nil
}

func TestRegistryRegisterDuplicateFails(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubProbe{id: "a", ordinal: 1}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(&stubProbe{id: "a", ordinal: 2}); err == nil {
		t.Fatal("expected error registering duplicate id")
	}
}

func TestRegistryRegisterRejectsNilAndEmptyID(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); err == nil {
		t.Error("expected error for nil probe")
	}
	if err := r.Register(&stubProbe{id: ""}); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&stubProbe{id: "a"})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate MustRegister")
		}
	}()
	r.MustRegister(&stubProbe{id: "a"})
}

func TestRegistryListOrderedByOrdinal(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&stubProbe{id: "c", ordinal: 30})
	r.MustRegister(&stubProbe{id: "a", ordinal: 10})
	r.MustRegister(&stubProbe{id: "b", ordinal: 20})

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 probes, got %d", len(list))
	}
	for i, id := range []string{"a", "b", "c"} {
		if list[i].ID() != id {
			t.Errorf("index %d: expected %q, got %q", i, id, list[i].ID())
		}
	}
}

func TestRegistryListTieBreaksByID(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&stubProbe{id: "z", ordinal: 10})
	r.MustRegister(&stubProbe{id: "a", ordinal: 10})

	list := r.List()
	if list[0].ID() != "a" || list[1].ID() != "z" {
		t.Fatalf("expected tie-break by id, got order %q, %q", list[0].ID(), list[1].ID())
	}
}

func TestRegistrySelectAll(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&stubProbe{id: "a", ordinal: 1})
	r.MustRegister(&stubProbe{id: "b", ordinal: 2})

	selected, missing := r.Select([]string{"all"})
	if len(selected) != 2 || len(missing) != 0 {
		t.Fatalf("expected all 2 probes selected, got %d selected, %d missing", len(selected), len(missing))
	}
}

func TestRegistrySelectSubsetReportsMissing(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&stubProbe{id: "a", ordinal: 1})
	r.MustRegister(&stubProbe{id: "b", ordinal: 2})

	selected, missing := r.Select([]string{"a", "ghost"})
	if len(selected) != 1 || selected[0].ID() != "a" {
		t.Fatalf("expected only probe a selected, got %+v", selected)
	}
	if len(missing) != 1 || missing[0] != "ghost" {
		t.Fatalf("expected [ghost] missing, got %v", missing)
	}
}

func TestRegistryUnregisterAndCount(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&stubProbe{id: "a"})
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}
	if !r.Unregister("a") {
		t.Fatal("expected Unregister to report removal")
	}
	if r.Unregister("a") {
		t.Fatal("expected second Unregister to report no-op")
	}
	if r.Count() != 0 {
		t.Fatalf("expected count 0, got %d", r.Count())
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected Get to report not found")
	}
}

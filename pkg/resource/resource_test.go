package resource

import "testing"

func TestState_String(t *testing.T) {
	s := State{Action: ActionCreate, Status: StatusComplete}
	if s.String() != "CREATE_COMPLETE" {
		t.Errorf("got %q", s.String())
	}
}

func TestResource_Transitions(t *testing.T) {
	r := NewResource(Definition{Name: "db", Type: "kiln::util::null"})

	if r.State() != (State{}) {
		t.Errorf("new resource should have zero state, got %v", r.State())
	}

	r.SetState(ActionCreate, StatusInProgress, "state changed")
	if got := r.State(); got.Action != ActionCreate || got.Status != StatusInProgress {
		t.Errorf("unexpected state %v", got)
	}

	r.SetState(ActionCreate, StatusComplete, "state changed")
	r.SetPhysicalID("phys-1")
	if r.PhysicalID() != "phys-1" {
		t.Errorf("physical id not recorded")
	}
	if r.StatusReason() != "state changed" {
		t.Errorf("unexpected reason %q", r.StatusReason())
	}
}

func TestResource_Live(t *testing.T) {
	r := NewResource(Definition{Name: "db"})

	live := []State{
		{ActionCreate, StatusInProgress},
		{ActionCreate, StatusComplete},
		{ActionResume, StatusInProgress},
		{ActionResume, StatusComplete},
		{ActionUpdate, StatusInProgress},
		{ActionUpdate, StatusComplete},
	}
	for _, s := range live {
		r.SetState(s.Action, s.Status, "")
		if !r.Live() {
			t.Errorf("expected %v to be live", s)
		}
	}

	dead := []State{
		{ActionCreate, StatusFailed},
		{ActionDelete, StatusInProgress},
		{ActionDelete, StatusComplete},
		{ActionSuspend, StatusComplete},
		{ActionRollback, StatusInProgress},
	}
	for _, s := range dead {
		r.SetState(s.Action, s.Status, "")
		if r.Live() {
			t.Errorf("expected %v to not be live", s)
		}
	}
}

func TestDefinitionFrom_DefaultDeletionPolicy(t *testing.T) {
	def := DefinitionFrom(templateResourceFixture(""))
	if def.DeletionPolicy != DeletionPolicyDelete {
		t.Errorf("expected default delete policy, got %q", def.DeletionPolicy)
	}

	def = DefinitionFrom(templateResourceFixture(DeletionPolicyRetain))
	if def.DeletionPolicy != DeletionPolicyRetain {
		t.Errorf("expected retain policy, got %q", def.DeletionPolicy)
	}
}

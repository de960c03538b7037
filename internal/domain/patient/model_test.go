package patient

import (
	"testing"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"asthma,flu", []string{"asthma", "flu"}},
		{"asthma, flu", []string{"asthma", " flu"}},
		{"", []string{""}},
		{"a,,b", []string{"a", "", "b"}},
	}

	for _, tt := range tests {
		got := SplitList(tt.raw)
		if len(got) != len(tt.want) {
			t.Fatalf("SplitList(%q) = %q, want %q", tt.raw, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("SplitList(%q)[%d] = %q, want %q", tt.raw, i, got[i], tt.want[i])
			}
		}
	}
}

func TestRecord_Clone(t *testing.T) {
	r := &Record{Email: "a@x", Conditions: []string{"asthma"}, Prescriptions: []string{"inhaler"}}
	c := r.Clone()
	c.Conditions[0] = "flu"
	c.Prescriptions = append(c.Prescriptions, "x")

	if r.Conditions[0] != "asthma" || len(r.Prescriptions) != 1 {
		t.Errorf("clone shares state with original: %+v", r)
	}
	var nilRec *Record
	if nilRec.Clone() != nil {
		t.Error("expected nil clone of nil record")
	}
}

func TestRecord_CheckCredential(t *testing.T) {
	r := &Record{Credential: "Secret"}
	if !r.CheckCredential("Secret") {
		t.Error("expected exact credential to match")
	}
	if r.CheckCredential("secret") {
		t.Error("credential comparison must be case-sensitive")
	}
}

func TestRole_Valid(t *testing.T) {
	if !RolePatient.Valid() || !RoleAdmin.Valid() {
		t.Error("expected patient and admin to be valid")
	}
	if Role("Admin").Valid() || Role("").Valid() {
		t.Error("expected unknown roles to be invalid")
	}
}

func TestNewUID(t *testing.T) {
	a, b := NewUID(), NewUID()
	if len(a) != 8 {
		t.Errorf("expected 8 character UID, got %q", a)
	}
	if a == b {
		t.Errorf("expected distinct UIDs, got %q twice", a)
	}
}

package kubeapi

import "testing"

func TestEncodeSelectorForms(t *testing.T) {
	cases := []struct {
		name string
		reqs []Requirement
		want string
	}{
		{"eq", []Requirement{Eq("app", "nginx")}, "app=nginx"},
		{"noteq", []Requirement{NotEq("app", "nginx")}, "app!=nginx"},
		{"in", []Requirement{In("env", "prod", "staging")}, "env in (prod,staging)"},
		{"notin", []Requirement{NotIn("env", "prod", "staging")}, "env notin (prod,staging)"},
		{"exists", []Requirement{Exists("env")}, "env"},
		{
			"merged",
			[]Requirement{Eq("app", "nginx"), Exists("tier")},
			"app=nginx,tier",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := encodeSelector(c.reqs)
			if err != nil {
				t.Fatalf("encodeSelector: %v", err)
			}
			if got != c.want {
				t.Errorf("encodeSelector(%v) = %q, want %q", c.reqs, got, c.want)
			}
		})
	}
}

func TestFieldSelectorRejectsInOperator(t *testing.T) {
	_, err := buildListOptions([]ListOption{WithFieldSelector(In("metadata.name", "a", "b"))})
	if err == nil {
		t.Fatal("expected an error for an In field selector")
	}
}

func TestFieldSelectorAllowsEqAndNotEq(t *testing.T) {
	opts, err := buildListOptions([]ListOption{
		WithFieldSelector(FieldEq("metadata.name", "abc")),
		WithFieldSelector(FieldNotEq("status.phase", "Failed")),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := encodeSelector(opts.FieldSelector)
	if err != nil {
		t.Fatalf("encodeSelector: %v", err)
	}
	want := "metadata.name=abc,status.phase!=Failed"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

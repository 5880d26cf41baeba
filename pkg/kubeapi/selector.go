package kubeapi

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/selection"
)

// Requirement is one clause of a label or field selector. The operator
// vocabulary is apimachinery's own selection.Operator rather than a
// hand-rolled enum, since every k8s.io/api type this module decodes already
// speaks that vocabulary.
type Requirement struct {
	Key      string
	Operator selection.Operator
	Values   []string
}

// Label-selector requirement constructors. These are the only five forms
// spec allows for label selectors (Eq, NotEq, In, NotIn, Exists).
func Eq(key, value string) Requirement {
	return Requirement{Key: key, Operator: selection.Equals, Values: []string{value}}
}

func NotEq(key, value string) Requirement {
	return Requirement{Key: key, Operator: selection.NotEquals, Values: []string{value}}
}

func In(key string, values ...string) Requirement {
	return Requirement{Key: key, Operator: selection.In, Values: values}
}

func NotIn(key string, values ...string) Requirement {
	return Requirement{Key: key, Operator: selection.NotIn, Values: values}
}

func Exists(key string) Requirement {
	return Requirement{Key: key, Operator: selection.Exists}
}

// FieldEq and FieldNotEq are the only two forms a field selector allows.
func FieldEq(key, value string) Requirement {
	return Requirement{Key: key, Operator: selection.Equals, Values: []string{value}}
}

func FieldNotEq(key, value string) Requirement {
	return Requirement{Key: key, Operator: selection.NotEquals, Values: []string{value}}
}

// encodeOne renders a single requirement in the Kubernetes selector grammar:
// k=v, k!=v, k in (a,b), k notin (a,b), or bare k for Exists.
func (r Requirement) encodeOne() (string, error) {
	switch r.Operator {
	case selection.Equals, selection.DoubleEquals:
		if len(r.Values) != 1 {
			return "", fmt.Errorf("kubeapi: %s requires exactly one value", r.Operator)
		}
		return r.Key + "=" + r.Values[0], nil
	case selection.NotEquals:
		if len(r.Values) != 1 {
			return "", fmt.Errorf("kubeapi: %s requires exactly one value", r.Operator)
		}
		return r.Key + "!=" + r.Values[0], nil
	case selection.In:
		return r.Key + " in (" + strings.Join(r.Values, ",") + ")", nil
	case selection.NotIn:
		return r.Key + " notin (" + strings.Join(r.Values, ",") + ")", nil
	case selection.Exists:
		return r.Key, nil
	}
	return "", fmt.Errorf("kubeapi: unsupported selector operator %q", r.Operator)
}

// encodeSelector joins a list of requirements with commas, preserving
// caller-given order. Spec requires that multiple selectors sharing a query
// parameter be merged into one comma-joined value; callers get this for
// free by appending all their requirements into one slice before encoding.
func encodeSelector(reqs []Requirement) (string, error) {
	parts := make([]string, 0, len(reqs))
	for _, r := range reqs {
		s, err := r.encodeOne()
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ","), nil
}

// fieldSelectorAllowed rejects anything but Eq/NotEq for field selectors,
// matching spec's narrower field-selector grammar.
func fieldSelectorAllowed(r Requirement) error {
	switch r.Operator {
	case selection.Equals, selection.DoubleEquals, selection.NotEquals:
		return nil
	default:
		return fmt.Errorf("kubeapi: field selector does not support operator %q", r.Operator)
	}
}

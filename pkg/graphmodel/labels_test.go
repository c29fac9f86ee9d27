// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphmodel

import "testing"

func TestEdgeAdmissible(t *testing.T) {
	cases := []struct {
		et       EdgeType
		from, to Label
		want     bool
	}{
		{EdgeHasParameter, LabelFunction, LabelParameter, true},
		{EdgeHasParameter, LabelClass, LabelParameter, false},
		{EdgeResolvesTo, LabelCallSite, LabelFunction, true},
		{EdgeResolvesTo, LabelFunction, LabelCallSite, false},
		{EdgeCalls, LabelCallSite, LabelFunction, true},
		{EdgeCalls, LabelFunction, LabelCallSite, false},
		{EdgeIsSubtypeOf, LabelType, LabelType, true},
		{EdgeReferences, LabelVariable, LabelUnresolved, true},
		{EdgeInherits, LabelClass, LabelClass, true},
		{EdgeInherits, LabelClass, LabelFunction, false},
	}
	for _, c := range cases {
		got := EdgeAdmissible(c.et, c.from, c.to)
		if got != c.want {
			t.Errorf("EdgeAdmissible(%s, %s, %s) = %v, want %v", c.et, c.from, c.to, got, c.want)
		}
	}
}

func TestVisibilityOf(t *testing.T) {
	cases := map[string]Visibility{
		"greet":    VisibilityPublic,
		"_helper":  VisibilityPrivate,
		"__init__": VisibilityDunder,
		"__x":      VisibilityPrivate,
	}
	for name, want := range cases {
		if got := VisibilityOf(name); got != want {
			t.Errorf("VisibilityOf(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestVariableAddInferredTypeDedupSorted(t *testing.T) {
	v := &VariableAttrs{}
	v.AddInferredType("int")
	v.AddInferredType("str")
	v.AddInferredType("int")
	want := []string{"int", "str"}
	if len(v.InferredTypes) != len(want) {
		t.Fatalf("got %v, want %v", v.InferredTypes, want)
	}
	for i := range want {
		if v.InferredTypes[i] != want[i] {
			t.Fatalf("got %v, want %v", v.InferredTypes, want)
		}
	}
}

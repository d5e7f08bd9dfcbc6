package navigator

import (
	"testing"

	"github.com/gofhir/snapshot/service"
)

func elems(paths ...string) []*service.ElementDefinition {
	out := make([]*service.ElementDefinition, 0, len(paths))
	for _, p := range paths {
		out = append(out, &service.ElementDefinition{Path: p})
	}
	return out
}

func paths(nav *Navigator) []string {
	out := make([]string, 0, nav.Count())
	for _, e := range nav.Elements() {
		out = append(out, e.Path)
	}
	return out
}

func equalPaths(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestNavigator_Movement(t *testing.T) {
	nav := New(elems(
		"Patient",
		"Patient.id",
		"Patient.name",
		"Patient.name.family",
		"Patient.name.given",
		"Patient.telecom",
	))

	if !nav.AtRoot() {
		t.Fatal("new navigator not at document root")
	}
	if !nav.HasChildren() {
		t.Fatal("document root should have children")
	}

	if !nav.MoveToFirstChild() || nav.Path() != "Patient" {
		t.Fatalf("first child = %q, want Patient", nav.Path())
	}
	if !nav.MoveToFirstChild() || nav.Path() != "Patient.id" {
		t.Fatalf("first child = %q, want Patient.id", nav.Path())
	}
	if nav.HasChildren() {
		t.Error("Patient.id should be a leaf")
	}
	if !nav.MoveToNext() || nav.Path() != "Patient.name" {
		t.Fatalf("next sibling = %q, want Patient.name", nav.Path())
	}
	if !nav.HasChildren() {
		t.Error("Patient.name should have children")
	}
	// MoveToNext skips the name subtree.
	if !nav.MoveToNext() || nav.Path() != "Patient.telecom" {
		t.Fatalf("next sibling = %q, want Patient.telecom", nav.Path())
	}
	if nav.MoveToNext() {
		t.Error("telecom has no next sibling")
	}
	if nav.Path() != "Patient.telecom" {
		t.Error("failed MoveToNext moved the cursor")
	}
	if !nav.MoveToParent() || nav.Path() != "Patient" {
		t.Fatalf("parent = %q, want Patient", nav.Path())
	}
	if !nav.MoveToParent() || !nav.AtRoot() {
		t.Fatal("root element's parent should be the document root")
	}
}

func TestNavigator_MoveToNextName(t *testing.T) {
	nav := New(elems(
		"Patient",
		"Patient.id",
		"Patient.name",
		"Patient.name.family",
		"Patient.telecom",
		"Patient.telecom.system",
		"Patient.telecom",
	))

	nav.MoveToFirstChild()
	nav.MoveToFirstChild() // Patient.id

	if !nav.MoveToNextName("telecom") || nav.Path() != "Patient.telecom" {
		t.Fatalf("at %q, want first Patient.telecom", nav.Path())
	}
	if !nav.MoveToNextName("telecom") {
		t.Fatal("expected second telecom sibling")
	}
	if nav.MoveToNextName("telecom") {
		t.Error("no third telecom; cursor should be unchanged")
	}

	mark := nav.Path()
	if nav.MoveToNextName("nope") {
		t.Error("bogus name matched")
	}
	if nav.Path() != mark {
		t.Error("failed name-filtered move changed the cursor")
	}
}

func TestNavigator_BookmarksSurviveInsertion(t *testing.T) {
	nav := New(elems(
		"Patient",
		"Patient.name",
		"Patient.telecom",
	))

	nav.MoveToFirstChild()
	nav.MoveToFirstChild() // Patient.name
	nameMark := nav.Bookmark()
	nav.MoveToNext() // Patient.telecom
	telecomMark := nav.Bookmark()

	// Insert children under Patient.name, shifting telecom's offset.
	if err := nav.ReturnToBookmark(nameMark); err != nil {
		t.Fatal(err)
	}
	nav.AppendChild(&service.ElementDefinition{Path: "Patient.name.family"})
	nav.AppendChild(&service.ElementDefinition{Path: "Patient.name.given"})

	if err := nav.ReturnToBookmark(telecomMark); err != nil {
		t.Fatalf("telecom bookmark stale after insertion: %v", err)
	}
	if nav.Path() != "Patient.telecom" {
		t.Fatalf("restored to %q, want Patient.telecom", nav.Path())
	}

	if err := nav.ReturnToBookmark(Bookmark{}); err != nil {
		t.Fatal(err)
	}
	if !nav.AtRoot() {
		t.Error("zero bookmark should restore the document root")
	}

	stale := Bookmark{elem: &service.ElementDefinition{Path: "Other"}}
	if err := nav.ReturnToBookmark(stale); err != ErrStaleBookmark {
		t.Errorf("expected ErrStaleBookmark, got %v", err)
	}
}

func TestNavigator_AppendChild(t *testing.T) {
	nav := New(elems(
		"Patient",
		"Patient.name",
		"Patient.name.family",
		"Patient.telecom",
	))

	nav.MoveToFirstChild()
	nav.MoveToFirstChild() // Patient.name
	nav.AppendChild(&service.ElementDefinition{Path: "Patient.name.given"})

	equalPaths(t, paths(nav), []string{
		"Patient",
		"Patient.name",
		"Patient.name.family",
		"Patient.name.given",
		"Patient.telecom",
	})
	if nav.Path() != "Patient.name" {
		t.Errorf("cursor moved to %q by AppendChild", nav.Path())
	}
}

func TestNavigator_DuplicateAfter(t *testing.T) {
	nav := New(elems(
		"Patient",
		"Patient.telecom",
		"Patient.telecom.system",
		"Patient.telecom.value",
		"Patient.address",
	))

	nav.MoveToFirstChild()
	nav.MoveToFirstChild() // Patient.telecom
	src := nav.Bookmark()

	clone, err := nav.DuplicateAfter(src, src)
	if err != nil {
		t.Fatal(err)
	}

	equalPaths(t, paths(nav), []string{
		"Patient",
		"Patient.telecom",
		"Patient.telecom.system",
		"Patient.telecom.value",
		"Patient.telecom",
		"Patient.telecom.system",
		"Patient.telecom.value",
		"Patient.address",
	})

	if err := nav.ReturnToBookmark(clone); err != nil {
		t.Fatal(err)
	}
	if nav.Path() != "Patient.telecom" {
		t.Fatalf("clone bookmark at %q", nav.Path())
	}
	// The clone root is a distinct instance.
	if err := nav.ReturnToBookmark(src); err != nil {
		t.Fatal(err)
	}
	if nav.Current() == clone.elem {
		t.Error("clone aliases the source element")
	}
}

func TestNavigator_CopyChildrenRehomesPaths(t *testing.T) {
	src := New(elems(
		"HumanName",
		"HumanName.family",
		"HumanName.given",
		"HumanName.period",
		"HumanName.period.start",
	))
	src.MoveToFirstChild() // HumanName

	dst := New(elems(
		"Patient",
		"Patient.name",
	))
	dst.MoveToFirstChild()
	dst.MoveToFirstChild() // Patient.name

	copied := dst.CopyChildren(src)
	if len(copied) != 4 {
		t.Fatalf("copied %d elements, want 4", len(copied))
	}

	equalPaths(t, paths(dst), []string{
		"Patient",
		"Patient.name",
		"Patient.name.family",
		"Patient.name.given",
		"Patient.name.period",
		"Patient.name.period.start",
	})

	// Source untouched.
	equalPaths(t, paths(src), []string{
		"HumanName",
		"HumanName.family",
		"HumanName.given",
		"HumanName.period",
		"HumanName.period.start",
	})

	// Copying onto a node that has children is refused.
	if again := dst.CopyChildren(src); again != nil {
		t.Error("CopyChildren onto a populated node should refuse")
	}
}

func TestNavigator_JumpToNameReference(t *testing.T) {
	nav := New(elems(
		"Questionnaire",
		"Questionnaire.item",
		"Questionnaire.item.linkId",
		"Questionnaire.item.item",
	))

	if !nav.JumpToNameReference("#Questionnaire.item") {
		t.Fatal("content reference target not found")
	}
	if nav.Path() != "Questionnaire.item" {
		t.Fatalf("jumped to %q", nav.Path())
	}

	if nav.JumpToNameReference("#Questionnaire.nope") {
		t.Error("bogus reference matched")
	}
	if nav.Path() != "Questionnaire.item" {
		t.Error("failed jump moved the cursor")
	}
}

func TestFromSnapshot_ClonesSource(t *testing.T) {
	max := "*"
	snapshot := []service.ElementDefinition{
		{Path: "Patient", Max: &max},
		{Path: "Patient.name", Max: &max},
	}

	nav := FromSnapshot("http://example.org/Patient", snapshot)
	nav.MoveToFirstChild()
	*nav.Current().Max = "1"

	if snapshot[0].Max == nil || *snapshot[0].Max != "*" {
		t.Error("navigator aliases the source snapshot")
	}
	if nav.URL != "http://example.org/Patient" {
		t.Errorf("URL = %q", nav.URL)
	}
}

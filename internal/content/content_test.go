package content

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const skillsJSON = `{"skillCategories":[{"title":"Cloud","skills":[{"id":"k8s","name":"Kubernetes"},{"id":"tf","name":"Terraform"}]}]}`

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func TestLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "skills.json", skillsJSON)
	writeFile(t, dir, "projects.json", `{"projects":[]}`)
	writeFile(t, dir, "about.json", `{"name": `)
	writeFile(t, dir, ContextFile, "Ada builds clusters.")

	snap, err := NewLoader(dir, "", "Ada").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cat := NewCatalog()
	cat.Replace(snap)

	if _, err := cat.Document(KindProjects); err != nil {
		t.Errorf("projects should load, got %v", err)
	}
	if _, err := cat.Document(KindAbout); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("about: want ErrInvalidJSON, got %v", err)
	}

	name, ok := cat.SkillName("k8s")
	if !ok || name != "Kubernetes" {
		t.Errorf("SkillName(k8s) = %q, %v", name, ok)
	}
	if _, ok := cat.SkillName("nope"); ok {
		t.Error("unknown skill should not resolve")
	}

	prompt, err := cat.SystemPrompt()
	if err != nil {
		t.Fatalf("SystemPrompt() error = %v", err)
	}
	if !strings.Contains(prompt, "Ada builds clusters.") {
		t.Error("prompt should embed the context")
	}
	if !strings.Contains(prompt, "portfolio website") || !strings.Contains(prompt, `"topics"`) {
		t.Error("prompt should carry the persona and the response format")
	}

	st := cat.Status()
	if st.Skills != 2 || !st.Context || st.Documents["about"] {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestLoaderMissingFiles(t *testing.T) {
	snap, err := NewLoader(t.TempDir(), "", "Ada").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cat := NewCatalog()
	cat.Replace(snap)

	for _, k := range Kinds {
		if _, err := cat.Document(k); !errors.Is(err, ErrFileNotFound) {
			t.Errorf("%s: want ErrFileNotFound, got %v", k, err)
		}
	}
	if _, err := cat.SystemPrompt(); !errors.Is(err, ErrNoContext) {
		t.Errorf("want ErrNoContext, got %v", err)
	}
}

func TestEmptyCatalog(t *testing.T) {
	cat := NewCatalog()
	if _, err := cat.Document(KindSkills); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("want ErrFileNotFound, got %v", err)
	}
}

func TestPromptFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ContextFile, "ctx")
	writeFile(t, dir, "prompt.yaml", `owner: Tomer
notes:
  - Refer to Tomer as "she".
`)

	snap, err := NewLoader(dir, filepath.Join(dir, "prompt.yaml"), "ignored").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !strings.Contains(snap.Prompt, "questions about Tomer") {
		t.Error("owner from prompt file should win")
	}
	if !strings.Contains(snap.Prompt, `- Refer to Tomer as "she".`) {
		t.Error("notes should be appended to the instructions")
	}
}

func TestPromptFileTemplateOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ContextFile, "ctx")
	writeFile(t, dir, "prompt.yaml", "template: \"Hi {{.Owner}}: {{.Context}}\"\n")

	snap, err := NewLoader(dir, filepath.Join(dir, "prompt.yaml"), "Ada").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap.Prompt != "Hi Ada: ctx" {
		t.Errorf("Prompt = %q", snap.Prompt)
	}
}

func TestPromptFileInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "prompt.yaml", "template: \"{{.Owner\"\n")

	if _, err := NewLoader(dir, filepath.Join(dir, "prompt.yaml"), "Ada").Load(); err == nil {
		t.Error("Load() with a broken template should fail")
	}
}

func TestKindTitle(t *testing.T) {
	if got := KindProjects.Title(); got != "Projects" {
		t.Errorf("Title() = %q", got)
	}
}

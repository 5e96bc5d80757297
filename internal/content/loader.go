package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/goccy/go-json"
)

// ContextFile is the markdown document describing the owner.
const ContextFile = "context.md"

// Snapshot is everything read from the content directory in one pass.
type Snapshot struct {
	Documents  map[Kind]Document
	Skills     map[string]string // id -> name
	Prompt     string            // persona prompt with the context rendered in
	ContextErr error
	LoadedAt   time.Time
}

// Loader reads the content directory.
type Loader struct {
	dir        string
	promptFile string
	owner      string
}

// NewLoader creates a loader for dir. promptFile may be empty.
func NewLoader(dir, promptFile, owner string) *Loader {
	return &Loader{
		dir:        dir,
		promptFile: promptFile,
		owner:      owner,
	}
}

// Dir returns the content directory.
func (l *Loader) Dir() string { return l.dir }

// Load reads every lookup table, context.md and the prompt settings.
// Missing or malformed tables are recorded per document so that the
// others stay servable. Only an unusable prompt file fails the load.
func (l *Loader) Load() (*Snapshot, error) {
	prompt, err := LoadPromptConfig(l.promptFile, l.owner)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Documents: make(map[Kind]Document, len(Kinds)),
		Skills:    map[string]string{},
		LoadedAt:  time.Now(),
	}

	for _, kind := range Kinds {
		snap.Documents[kind] = l.readDocument(kind)
	}

	if doc := snap.Documents[KindSkills]; doc.Err == nil {
		snap.Skills = indexSkills(doc.Data)
	}

	ctxText, err := os.ReadFile(filepath.Join(l.dir, ContextFile))
	if err != nil {
		snap.ContextErr = fmt.Errorf("failed to read %s: %w", ContextFile, err)
		return snap, nil
	}

	rendered, err := prompt.Render(string(ctxText))
	if err != nil {
		return nil, err
	}
	snap.Prompt = rendered

	return snap, nil
}

func (l *Loader) readDocument(kind Kind) Document {
	data, err := os.ReadFile(filepath.Join(l.dir, string(kind)+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Document{Err: ErrFileNotFound}
		}
		return Document{Err: fmt.Errorf("read %s: %w", kind, err)}
	}
	if !json.Valid(data) {
		return Document{Err: ErrInvalidJSON}
	}
	return Document{Data: data}
}

func indexSkills(data []byte) map[string]string {
	var doc domain.SkillsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return map[string]string{}
	}

	out := make(map[string]string)
	for _, cat := range doc.SkillCategories {
		for _, s := range cat.Skills {
			if s.ID != "" {
				out[s.ID] = s.Name
			}
		}
	}
	return out
}

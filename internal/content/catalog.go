// Package content holds the read-only lookup tables served to the frontend
// and the persona prompt given to the LLM.
package content

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrFileNotFound is returned for a lookup table missing from the content directory.
	ErrFileNotFound = errors.New("file not found")
	// ErrInvalidJSON is returned for a lookup table that does not parse.
	ErrInvalidJSON = errors.New("invalid json")
	// ErrNoContext is returned when context.md could not be read.
	ErrNoContext = errors.New("context unavailable")
)

// Kind names a lookup table.
type Kind string

const (
	KindProjects Kind = "projects"
	KindSkills   Kind = "skills"
	KindAbout    Kind = "about"
)

// Kinds lists every lookup table in load order.
var Kinds = []Kind{KindProjects, KindSkills, KindAbout}

// Title returns the capitalized table name used in error messages.
func (k Kind) Title() string {
	s := string(k)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Document is one loaded lookup table. Exactly one of Data and Err is set.
type Document struct {
	Data []byte
	Err  error
}

// Catalog is the in-memory view of the content directory.
// It is swapped as a whole on reload.
type Catalog struct {
	mu         sync.RWMutex
	snap       *Snapshot
	lastReload time.Time
}

// NewCatalog creates an empty catalog. Every lookup fails until Replace is called.
func NewCatalog() *Catalog {
	return &Catalog{snap: &Snapshot{}}
}

// Replace installs a freshly loaded snapshot.
func (c *Catalog) Replace(snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap = snap
	c.lastReload = time.Now()
}

// Document returns the raw JSON of a lookup table.
func (c *Catalog) Document(kind Kind) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	doc, ok := c.snap.Documents[kind]
	if !ok {
		return nil, ErrFileNotFound
	}
	if doc.Err != nil {
		return nil, doc.Err
	}
	return doc.Data, nil
}

// SkillName resolves a skill id through skills.json.
func (c *Catalog) SkillName(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name, ok := c.snap.Skills[id]
	return name, ok
}

// SystemPrompt returns the persona prompt with context.md rendered in.
func (c *Catalog) SystemPrompt() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snap.ContextErr != nil || c.snap.Prompt == "" {
		return "", ErrNoContext
	}
	return c.snap.Prompt, nil
}

// Status is a summary of the catalog for the infra endpoint.
type Status struct {
	LastReload time.Time       `json:"last_reload"`
	Documents  map[string]bool `json:"documents"`
	Skills     int             `json:"skills"`
	Context    bool            `json:"context"`
}

// Status reports which tables are currently servable.
func (c *Catalog) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docs := make(map[string]bool, len(Kinds))
	for _, k := range Kinds {
		doc, ok := c.snap.Documents[k]
		docs[string(k)] = ok && doc.Err == nil
	}
	return Status{
		LastReload: c.lastReload,
		Documents:  docs,
		Skills:     len(c.snap.Skills),
		Context:    c.snap.ContextErr == nil && c.snap.Prompt != "",
	}
}

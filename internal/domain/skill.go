package domain

// Skill is an entry of the skills lookup table.
type Skill struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SkillCategory groups skills the way skills.json does.
type SkillCategory struct {
	Title  string  `json:"title,omitempty"`
	Skills []Skill `json:"skills"`
}

// SkillsDocument is the shape of skills.json.
type SkillsDocument struct {
	SkillCategories []SkillCategory `json:"skillCategories"`
}

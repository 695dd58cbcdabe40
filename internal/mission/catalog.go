package mission

import "fmt"

// FieldKind is the validation class of a collected answer.
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldChoice FieldKind = "choice"
	FieldNumber FieldKind = "number"
)

// StageKind describes what a generation stage must produce.
type StageKind string

const (
	// StageText produces free text.
	StageText StageKind = "text"
	// StageOptions produces options; the user must pick one during review.
	StageOptions StageKind = "options"
	// StageList produces a list that is kept whole.
	StageList StageKind = "list"
	// StageFields produces a fixed set of named text fields.
	StageFields StageKind = "fields"
	// StageImage produces an image reference.
	StageImage StageKind = "image"
)

// Field is one answer collected before generation starts.
type Field struct {
	Name     string
	Kind     FieldKind
	Prompt   string
	Required bool
	Choices  []string
}

// StageSpec is one generation stage of a mission.
type StageSpec struct {
	ID       string
	Kind     StageKind
	Title    string
	Produces []string // required field names for StageFields
}

// Selectable reports whether review of this stage requires a selection.
func (s StageSpec) Selectable() bool {
	return s.Kind == StageOptions
}

// Spec is the compiled definition of one mission.
type Spec struct {
	ID           ID
	Title        string
	Fields       []Field
	Stages       []StageSpec
	XPAward      int
	ClarityFloor int
}

// Stage looks up a stage by id, returning its index.
func (s Spec) Stage(id string) (StageSpec, int, bool) {
	for i, st := range s.Stages {
		if st.ID == id {
			return st, i, true
		}
	}
	return StageSpec{}, -1, false
}

// Level is one rung of the experience ladder.
type Level struct {
	Label string
	MinXP int
}

// Ladder is the experience ladder, ascending by MinXP with the first rung at 0.
type Ladder []Level

// Level returns the label for xp and the experience still needed for the next rung.
// At the top rung the remaining amount is zero.
func (l Ladder) Level(xp int) (string, int) {
	label := ""
	next := 0
	for i, lvl := range l {
		if xp < lvl.MinXP {
			break
		}
		label = lvl.Label
		next = 0
		if i+1 < len(l) {
			next = l[i+1].MinXP - xp
		}
	}
	return label, next
}

// Catalog holds every mission spec in ordinal order plus the level ladder.
type Catalog struct {
	Missions []Spec
	Levels   Ladder
}

// Spec returns the spec for id.
func (c *Catalog) Spec(id ID) (Spec, bool) {
	for _, s := range c.Missions {
		if s.ID == id {
			return s, true
		}
	}
	return Spec{}, false
}

// MustSpec is like Spec but panics when the mission is not in the catalog.
func (c *Catalog) MustSpec(id ID) Spec {
	s, ok := c.Spec(id)
	if !ok {
		panic(fmt.Sprintf("mission %s not in catalog", id))
	}
	return s
}

// XPAward returns the one-time experience award for completing id.
func (c *Catalog) XPAward(id ID) int {
	s, _ := c.Spec(id)
	return s.XPAward
}

// Floor returns the minimum clarity and percentile score reached by completing id.
func (c *Catalog) Floor(id ID) int {
	s, _ := c.Spec(id)
	return s.ClarityFloor
}

// Level returns the label for xp from the catalog's ladder.
func (c *Catalog) Level(xp int) (string, int) {
	return c.Levels.Level(xp)
}

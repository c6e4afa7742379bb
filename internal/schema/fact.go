package schema

// FactCategory classifies an extracted fact.
type FactCategory string

const (
	FactCore       FactCategory = "CORE"       // stable identity facts → User section
	FactPreference FactCategory = "PREFERENCE" // likes/dislikes → Preferences section
	FactDecision   FactCategory = "DECISION"   // agreed choices → Decisions section
	FactProject    FactCategory = "PROJECT"    // in-flight work → Current section
	FactUpdate     FactCategory = "UPDATE"     // replace an existing fact in place
	FactDelete     FactCategory = "DELETE"     // remove an existing fact
)

// Fact is a single extraction result. It is ephemeral: consumed immediately
// by the brain mutator and never persisted on its own.
//
// Section names the target document section for UPDATE/DELETE; for the append
// categories it is derived from the category. OldContent is the substring
// identifying the fact to replace and is set only for UPDATE.
type Fact struct {
	Category   FactCategory
	Content    string
	Section    string
	OldContent string
}

// Package brain maintains the bounded per-agent long-term fact document:
// parsing and serializing the document, merging extracted facts into it with
// fuzzy deduplication, archiving overflow, and extracting facts from
// finished conversations.
package brain

import "strings"

// Required sections, in canonical order. The parser inserts any that are
// missing so mutation code can rely on them existing.
var requiredSections = []string{"User", "Preferences", "Decisions", "Current"}

// volatileOrder ranks sections for overflow eviction, most volatile first:
// the oldest facts of the most volatile non-empty section go to the archive
// until the document fits its cap again.
var volatileOrder = []string{"Current", "Decisions", "Preferences", "User"}

// Section is one named list of bullet facts.
type Section struct {
	Name  string
	Facts []string
}

// Document is the in-memory form of an agent's fact document. Unknown
// sections and hand-edited lines survive a parse/serialize round trip
// untouched.
type Document struct {
	Sections []Section
}

// NewDocument returns an empty document with the four required sections.
func NewDocument() *Document {
	d := &Document{}
	for _, name := range requiredSections {
		d.Sections = append(d.Sections, Section{Name: name})
	}
	return d
}

// Parse reads the serialized document. Lines starting with "## " open a
// section; "- " lines are facts; any other non-blank line inside a section
// is kept as a fact verbatim (hand-edited content is never discarded).
func Parse(text string) *Document {
	d := &Document{}
	var cur *Section

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if name, ok := strings.CutPrefix(trimmed, "## "); ok {
			d.Sections = append(d.Sections, Section{Name: strings.TrimSpace(name)})
			cur = &d.Sections[len(d.Sections)-1]
			continue
		}
		if cur == nil {
			// Content before the first header: keep it in an unnamed section.
			d.Sections = append(d.Sections, Section{})
			cur = &d.Sections[0]
		}
		cur.Facts = append(cur.Facts, strings.TrimPrefix(trimmed, "- "))
	}

	for _, name := range requiredSections {
		if d.Section(name) == nil {
			d.Sections = append(d.Sections, Section{Name: name})
		}
	}
	return d
}

// Serialize renders the document. Output is stable: serializing a parse of
// it yields the identical string.
func (d *Document) Serialize() string {
	var b strings.Builder
	first := true
	for _, sec := range d.Sections {
		if !first {
			b.WriteString("\n")
		}
		first = false
		if sec.Name != "" {
			b.WriteString("## " + sec.Name + "\n")
		}
		for _, f := range sec.Facts {
			b.WriteString("- " + f + "\n")
		}
	}
	return b.String()
}

// Section returns the named section or nil. Matching is case-insensitive so
// extractor output like "[preferences]" still lands in the right place.
func (d *Document) Section(name string) *Section {
	for i := range d.Sections {
		if strings.EqualFold(d.Sections[i].Name, name) {
			return &d.Sections[i]
		}
	}
	return nil
}

// CharSize is the serialized size in characters, checked against the cap.
func (d *Document) CharSize() int {
	return len(d.Serialize())
}

// FactCount returns the total number of facts across all sections.
func (d *Document) FactCount() int {
	n := 0
	for _, sec := range d.Sections {
		n += len(sec.Facts)
	}
	return n
}

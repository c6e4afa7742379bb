package consolidate

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Artifact levels.
const (
	LevelL1 = "l1" // summary of a batch of raw sessions
	LevelL2 = "l2" // summary of a batch of L1 artifacts
	LevelL3 = "l3" // summary of a batch of L2 artifacts
)

// Header is the YAML frontmatter of a consolidation artifact. The reference
// list records exactly which inputs the artifact consumed; membership in any
// artifact's reference list is what marks an input as consolidated.
type Header struct {
	Type     string   `yaml:"type"`
	Created  string   `yaml:"created"`
	Sessions []string `yaml:"sessions,omitempty"`
	L1Files  []string `yaml:"l1_files,omitempty"`
	L2Files  []string `yaml:"l2_files,omitempty"`
}

// Refs returns the artifact's input references, whichever level they are.
func (h Header) Refs() []string {
	switch {
	case len(h.Sessions) > 0:
		return h.Sessions
	case len(h.L1Files) > 0:
		return h.L1Files
	default:
		return h.L2Files
	}
}

// Artifact is one consolidation file: frontmatter plus a markdown body.
type Artifact struct {
	Header Header
	Body   string
}

// NewArtifact builds an artifact of the given level referencing the inputs.
func NewArtifact(level string, refs []string, body string, now time.Time) Artifact {
	h := Header{Type: level, Created: now.UTC().Format(time.RFC3339)}
	switch level {
	case LevelL1:
		h.Sessions = refs
	case LevelL2:
		h.L1Files = refs
	case LevelL3:
		h.L2Files = refs
	}
	return Artifact{Header: h, Body: body}
}

const frontmatterDelim = "---"

// Encode renders the artifact as frontmatter-delimited markdown.
func (a Artifact) Encode() ([]byte, error) {
	meta, err := yaml.Marshal(a.Header)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact header: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim + "\n")
	buf.Write(meta)
	buf.WriteString(frontmatterDelim + "\n\n")
	buf.WriteString(strings.TrimSpace(a.Body))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// DecodeArtifact parses frontmatter-delimited markdown. A file without
// frontmatter decodes to an artifact with an empty header and the whole
// content as body.
func DecodeArtifact(raw []byte) (Artifact, error) {
	text := string(raw)
	if !strings.HasPrefix(text, frontmatterDelim+"\n") {
		return Artifact{Body: strings.TrimSpace(text)}, nil
	}

	rest := text[len(frontmatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return Artifact{}, fmt.Errorf("unterminated artifact frontmatter")
	}

	var h Header
	if err := yaml.Unmarshal([]byte(rest[:end]), &h); err != nil {
		return Artifact{}, fmt.Errorf("parse artifact header: %w", err)
	}

	body := rest[end+1+len(frontmatterDelim):]
	body = strings.TrimPrefix(body, "\n")
	return Artifact{Header: h, Body: strings.TrimSpace(body)}, nil
}

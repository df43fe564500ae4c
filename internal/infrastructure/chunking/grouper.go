package chunking

import (
	"strings"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

const (
	defaultMaxChars      = 2000
	defaultSoftMaxChars  = 1500
	compositeElementType = "CompositeElement"
)

// Grouper builds evidence chunks from partitioned elements. A title opens
// a new section, a page change closes the current chunk, and each table
// becomes its own chunk.
type Grouper struct {
	MaxChars     int
	SoftMaxChars int
}

func NewGrouper(maxChars, softMaxChars int) *Grouper {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	if softMaxChars <= 0 || softMaxChars > maxChars {
		softMaxChars = min(defaultSoftMaxChars, maxChars)
	}
	return &Grouper{MaxChars: maxChars, SoftMaxChars: softMaxChars}
}

type pending struct {
	section string
	page    int
	types   map[string]struct{}
	parts   []string
	size    int
	boxes   []*domain.BoundingBox
}

func (p *pending) empty() bool { return len(p.parts) == 0 }

func (p *pending) add(e domain.Element, text string) {
	if p.types == nil {
		p.types = make(map[string]struct{})
	}
	p.types[e.Type] = struct{}{}
	if p.size > 0 {
		p.size++
	}
	p.parts = append(p.parts, text)
	p.size += len([]rune(text))
	p.boxes = append(p.boxes, domain.BoxFromPoints(e.Points))
}

func (p *pending) chunk() domain.EvidenceChunk {
	elementType := compositeElementType
	if len(p.types) == 1 {
		for t := range p.types {
			elementType = t
		}
	}
	return domain.EvidenceChunk{
		Text:        strings.Join(p.parts, "\n"),
		Section:     p.section,
		PageNumber:  p.page,
		ElementType: elementType,
		BBox:        domain.MergeBoxes(p.boxes...),
	}
}

func (g *Grouper) Group(elements []domain.Element) []domain.EvidenceChunk {
	out := make([]domain.EvidenceChunk, 0, len(elements)/2+1)
	section := ""
	cur := &pending{}

	flush := func() {
		if !cur.empty() {
			out = append(out, cur.chunk())
		}
		cur = &pending{section: section}
	}

	for _, e := range elements {
		if e.IsTable() || e.TableHTML != "" {
			flush()
			out = append(out, domain.EvidenceChunk{
				Text:         e.Text,
				Section:      section,
				PageNumber:   e.PageNumber,
				ElementType:  e.Type,
				TablePayload: e.TableHTML,
				BBox:         domain.BoxFromPoints(e.Points),
			})
			continue
		}

		if e.IsTitle() {
			flush()
			section = e.Text
			cur.section = section
		}
		if !cur.empty() && cur.page != e.PageNumber {
			flush()
		}

		for _, piece := range splitRunes(e.Text, g.MaxChars) {
			next := len([]rune(piece))
			if !cur.empty() && (cur.size >= g.SoftMaxChars || cur.size+1+next > g.MaxChars) {
				flush()
			}
			cur.page = e.PageNumber
			cur.add(e, piece)
		}
	}
	flush()
	return out
}

// splitRunes cuts text into pieces of at most n runes, preferring to break
// on whitespace.
func splitRunes(text string, n int) []string {
	runes := []rune(text)
	if len(runes) <= n {
		return []string{text}
	}
	out := make([]string, 0, len(runes)/n+1)
	for len(runes) > n {
		cut := n
		for i := n; i > n/2; i-- {
			if runes[i] == ' ' || runes[i] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		out = append(out, rest)
	}
	return out
}

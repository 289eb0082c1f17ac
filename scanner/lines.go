package scanner

import "strings"

// Tagger decides whether line belongs to the block being grouped. It is
// given the running depth before the line and returns the depth after it.
type Tagger func(line string, depth int) (inside bool, next int)

// Tag is the per-line result of TagLines.
type Tag struct {
	Inside bool
	Depth  int // running depth after the line
}

// TagLines applies fn to every line with a running depth counter.
func TagLines(lines []string, fn Tagger) []Tag {
	tags := make([]Tag, len(lines))
	depth := 0
	for i, line := range lines {
		inside, next := fn(line, depth)
		tags[i] = Tag{Inside: inside, Depth: next}
		depth = next
	}
	return tags
}

// Bits renders tags as a string of '0' and '1', one per line.
func Bits(tags []Tag) string {
	var b strings.Builder
	for _, t := range tags {
		if t.Inside {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Lines splits text into lines without their terminators.
func Lines(text string) []string {
	return strings.Split(text, "\n")
}

// Indent returns the leading whitespace of line.
func Indent(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

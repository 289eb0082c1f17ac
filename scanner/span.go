package scanner

// Span is a balanced {} region: Open and Close are the offsets of the
// braces. Children are the spans directly nested inside it.
type Span struct {
	Open     int
	Close    int
	Children []Span
}

// Inner returns the text strictly between the braces.
func (s Span) Inner(src string) string { return src[s.Open+1 : s.Close] }

// Depth returns the nesting depth of the tree rooted at s, counting s.
func (s Span) Depth() int {
	d := 0
	for _, c := range s.Children {
		d = max(d, c.Depth())
	}
	return d + 1
}

// SpanTree returns the top-level brace spans of src with their nested
// spans. Braces inside strings and comments are ignored. An unclosed '{'
// or a stray '}' is an *UnbalancedError.
func SpanTree(src string) ([]Span, error) {
	p := &spanParser{src: src, sc: New(src)}
	spans, err := p.spans(-1)
	if err != nil {
		return nil, err
	}
	return spans, nil
}

type spanParser struct {
	src string
	sc  *CodeScanner
}

// spans collects sibling spans until the '}' closing the brace at open,
// or until end of input when open is -1.
func (p *spanParser) spans(open int) ([]Span, error) {
	var out []Span
	for ch, ok := p.sc.Next(); ok; ch, ok = p.sc.Next() {
		if !p.sc.InCode() {
			continue
		}
		switch ch {
		case '{':
			start := p.sc.Pos()
			children, err := p.spans(start)
			if err != nil {
				return nil, err
			}
			out = append(out, Span{Open: start, Close: p.sc.Pos(), Children: children})
		case '}':
			if open < 0 {
				pos := p.sc.Pos()
				return nil, &UnbalancedError{Open: '{', Line: LineAt(p.src, pos), Fragment: Fragment(p.src, pos), Stray: true}
			}
			return out, nil
		}
	}
	if open >= 0 {
		return nil, &UnbalancedError{Open: '{', Line: LineAt(p.src, open), Fragment: Fragment(p.src, open)}
	}
	return out, nil
}

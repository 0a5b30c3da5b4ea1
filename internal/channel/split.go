package channel

import "strings"

const (
	// maxChunkChars is the channel's hard body limit per message.
	maxChunkChars = 4000
	// fragment packing keeps individual outbound messages readable.
	maxFragmentLines = 30
	maxFragmentChars = 600
)

// SplitMessage breaks a long body into outbound fragments. Fragments
// respect paragraph boundaries where possible, then line boundaries,
// capped at maxFragmentLines lines or maxFragmentChars chars each, and
// never exceed the channel's 4000-char hard limit.
func SplitMessage(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	if len(body) <= maxFragmentChars && strings.Count(body, "\n") < maxFragmentLines {
		return []string{body}
	}

	var fragments []string
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		fragments = appendPacked(fragments, para)
	}
	return fragments
}

// appendPacked merges para into the last fragment when it fits, else
// starts a new fragment, splitting oversized paragraphs by line.
func appendPacked(fragments []string, para string) []string {
	if len(para) > maxFragmentChars {
		for _, piece := range splitLongParagraph(para) {
			fragments = appendPacked(fragments, piece)
		}
		return fragments
	}

	if n := len(fragments); n > 0 {
		last := fragments[n-1]
		merged := last + "\n\n" + para
		if len(merged) <= maxFragmentChars && strings.Count(merged, "\n") < maxFragmentLines {
			fragments[n-1] = merged
			return fragments
		}
	}
	return append(fragments, para)
}

// splitLongParagraph breaks one oversized paragraph into pieces at line
// boundaries, falling back to hard cuts for a single enormous line.
func splitLongParagraph(para string) []string {
	var pieces []string
	var cur strings.Builder
	curLines := 0

	flush := func() {
		if cur.Len() > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
			curLines = 0
		}
	}

	for _, line := range strings.Split(para, "\n") {
		for len(line) > maxFragmentChars {
			flush()
			cut := maxFragmentChars
			if idx := strings.LastIndex(line[:cut], " "); idx > maxFragmentChars/2 {
				cut = idx
			}
			pieces = append(pieces, strings.TrimSpace(line[:cut]))
			line = strings.TrimSpace(line[cut:])
		}
		if cur.Len()+len(line)+1 > maxFragmentChars || curLines >= maxFragmentLines {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
		curLines++
	}
	flush()

	// Enforce the hard channel limit regardless of packing.
	var out []string
	for _, p := range pieces {
		for len(p) > maxChunkChars {
			out = append(out, p[:maxChunkChars])
			p = p[maxChunkChars:]
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

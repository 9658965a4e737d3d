package ingest

import "strings"

// ChunkOptions controls the paragraph-boundary-preferring fixed-size
// chunker.
type ChunkOptions struct {
	Target  int
	MinLen  int
	MaxLen  int
	Overlap int
}

// DefaultChunkOptions matches defaults.
var DefaultChunkOptions = ChunkOptions{Target: 1000, MinLen: 500, MaxLen: 1500, Overlap: 100}

// Chunk splits text into paragraph-boundary-preferring fixed-size pieces.
// Paragraphs (blank-line-separated) are accumulated until the target
// length is reached or exceeded up to MaxLen, then flushed; a paragraph
// longer than MaxLen on its own is hard-split. Each chunk after the
// first repeats the trailing Overlap characters of the previous one.
func Chunk(text string, opt ChunkOptions) []string {
	if opt.Target <= 0 {
		opt = DefaultChunkOptions
	}
	paras := splitParagraphs(text)

	var out []string
	var buf strings.Builder
	flush := func() {
		s := strings.TrimSpace(buf.String())
		if s != "" {
			out = append(out, s)
		}
		buf.Reset()
	}

	for _, p := range paras {
		if len(p) > opt.MaxLen {
			flush()
			out = append(out, hardSplit(p, opt.MaxLen)...)
			continue
		}
		if buf.Len() > 0 && buf.Len()+len(p)+1 > opt.MaxLen {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
		if buf.Len() >= opt.Target {
			flush()
		}
	}
	flush()

	return applyOverlap(out, opt.Overlap)
}

func splitParagraphs(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hardSplit(p string, maxLen int) []string {
	var out []string
	for len(p) > maxLen {
		cut := maxLen
		if i := strings.LastIndex(p[:maxLen], " "); i > maxLen/2 {
			cut = i
		}
		out = append(out, strings.TrimSpace(p[:cut]))
		p = strings.TrimSpace(p[cut:])
	}
	if p != "" {
		out = append(out, p)
	}
	return out
}

func applyOverlap(chunks []string, overlap int) []string {
	if overlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev
		if len(tail) > overlap {
			tail = tail[len(tail)-overlap:]
		}
		out[i] = strings.TrimSpace(tail) + " " + chunks[i]
	}
	return out
}

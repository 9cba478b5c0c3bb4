package transcription

import "strings"

// SegmentWindow is the span of one word-grouped segment, in seconds.
const SegmentWindow = 30.0

type Word struct {
	Start      float64
	End        float64
	Text       string
	Confidence *float64
	Speaker    string
}

// GroupWords greedily packs consecutive words into segments: a word opens a new segment once its start
// is window seconds or more past the start of the running segment.
func GroupWords(words []Word, window float64) []Segment {
	return groupWords(words, window, false)
}

// groupWords with blendConfidence folds each added word's confidence into the segment as a running mean.
func groupWords(words []Word, window float64, blendConfidence bool) []Segment {
	if window <= 0 {
		window = SegmentWindow
	}

	out := make([]Segment, 0, 1)
	var cur *Segment
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		if cur == nil || w.Start-cur.Start >= window {
			if cur != nil {
				out = append(out, *cur)
			}
			cur = &Segment{
				Start:      w.Start,
				End:        w.End,
				Text:       text,
				Confidence: w.Confidence,
				Speaker:    w.Speaker,
			}
			continue
		}
		cur.End = w.End
		cur.Text += " " + text
		if blendConfidence && cur.Confidence != nil && w.Confidence != nil {
			cur.Confidence = floatPtr((*cur.Confidence + *w.Confidence) / 2)
		}
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}

func countSpeakers(segments []Segment) int {
	seen := map[string]struct{}{}
	for _, s := range segments {
		if s.Speaker == "" {
			continue
		}
		seen[s.Speaker] = struct{}{}
	}
	return len(seen)
}

package transcription

import "testing"

func secondWords(n int) []Word {
	words := make([]Word, 0, n)
	for i := 0; i < n; i++ {
		words = append(words, Word{Start: float64(i), End: float64(i) + 0.5, Text: "w"})
	}
	return words
}

func TestGroupWords_SplitsOnWindow(t *testing.T) {
	segs := GroupWords(secondWords(36), SegmentWindow)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Start != 0 || segs[0].End != 29.5 {
		t.Fatalf("unexpected first segment %+v", segs[0])
	}
	if segs[1].Start != 30 || segs[1].End != 35.5 {
		t.Fatalf("unexpected second segment %+v", segs[1])
	}
}

func TestGroupWords_BoundaryStartsNewSegment(t *testing.T) {
	segs := GroupWords([]Word{
		{Start: 0, End: 1, Text: "a"},
		{Start: 30, End: 31, Text: "b"},
	}, 30)
	if len(segs) != 2 {
		t.Fatalf("word exactly one window later must open a segment, got %d", len(segs))
	}
}

func TestGroupWords_JoinsTextAndSkipsBlanks(t *testing.T) {
	segs := GroupWords([]Word{
		{Start: 0, End: 1, Text: "hello"},
		{Start: 1, End: 2, Text: "  "},
		{Start: 2, End: 3, Text: "world"},
	}, 30)
	if len(segs) != 1 || segs[0].Text != "hello world" || segs[0].End != 3 {
		t.Fatalf("unexpected segments %+v", segs)
	}
}

func TestGroupWords_Empty(t *testing.T) {
	if segs := GroupWords(nil, 30); len(segs) != 0 {
		t.Fatalf("expected no segments, got %+v", segs)
	}
}

func TestGroupWords_BlendConfidence(t *testing.T) {
	segs := groupWords([]Word{
		{Start: 0, End: 1, Text: "a", Confidence: floatPtr(1)},
		{Start: 1, End: 2, Text: "b", Confidence: floatPtr(0.5)},
	}, 30, true)
	if len(segs) != 1 || segs[0].Confidence == nil || *segs[0].Confidence != 0.75 {
		t.Fatalf("unexpected blended confidence %+v", segs)
	}
}

func TestParseDurations(t *testing.T) {
	if got := parseISODuration("PT5.24S"); got != 5.24 {
		t.Fatalf("PT5.24S: got %v", got)
	}
	if got := parseISODuration("PT1H2M3S"); got != 3723 {
		t.Fatalf("PT1H2M3S: got %v", got)
	}
	if got := parseISODuration("garbage"); got != 0 {
		t.Fatalf("garbage: got %v", got)
	}
	if got := parseSecondsDuration("1.500s"); got != 1.5 {
		t.Fatalf("1.500s: got %v", got)
	}
	if got := parseSecondsDuration("12"); got != 0 {
		t.Fatalf("missing unit: got %v", got)
	}
}

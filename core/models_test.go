package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "plain job id", content: "santa-refactor-test"},
		{name: "empty string", content: ""},
		{name: "uuid-like", content: "6f1c2a34-1d7b-4a7e-9a51-0b6c58a7e2f4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("job-1")
	id2 := IDFromContent("job-2")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestRecordIDFromJobID(t *testing.T) {
	tests := []struct {
		name  string
		jobID string
		want  ID
	}{
		{name: "numeric post id", jobID: "123", want: 123},
		{name: "numeric with spaces", jobID: " 42 ", want: 42},
		{name: "zero", jobID: "0", want: 0},
		{name: "non numeric", jobID: "post-123", want: IDFromContent("post-123")},
		{name: "negative is hashed", jobID: "-5", want: IDFromContent("-5")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecordIDFromJobID(tt.jobID)
			if got != tt.want {
				t.Errorf("RecordIDFromJobID(%q) = %d, want %d", tt.jobID, got, tt.want)
			}
		})
	}
}

func TestCentroidSet_Levels(t *testing.T) {
	cs := CentroidSet{
		3: {1, 0},
		0: {0, 1},
		1: {1, 1},
	}

	got := cs.Levels()
	want := []Level{0, 1, 3}
	if len(got) != len(want) {
		t.Fatalf("Levels() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Levels()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCentroidSet_Clone(t *testing.T) {
	cs := CentroidSet{0: {1, 0}, 1: {0, 1}}
	clone := cs.Clone()

	clone[0][0] = 42
	delete(clone, 1)

	if cs[0][0] != 1 {
		t.Errorf("mutating clone changed original vector: %v", cs[0])
	}
	if !cs.Has(1) {
		t.Errorf("deleting from clone removed level from original")
	}
	if CentroidSet(nil).Clone() != nil {
		t.Errorf("Clone() of nil set should be nil")
	}
}

func TestCentroidSet_Dimension(t *testing.T) {
	tests := []struct {
		name string
		cs   CentroidSet
		want int
	}{
		{name: "empty", cs: CentroidSet{}, want: 0},
		{name: "nil", cs: nil, want: 0},
		{name: "two dims", cs: CentroidSet{0: {1, 0}}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cs.Dimension(); got != tt.want {
				t.Errorf("Dimension() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInferenceJob_RecordID(t *testing.T) {
	job := &InferenceJob{JobID: "77"}
	if job.RecordID() != 77 {
		t.Errorf("RecordID() = %d, want 77", job.RecordID())
	}
}

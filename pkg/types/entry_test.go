package types

import (
	"reflect"
	"testing"
	"time"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "mixed case and whitespace collapse to one tag",
			in:   []string{"A", "a", " A "},
			want: []string{"a"},
		},
		{
			name: "empty strings dropped",
			in:   []string{"", "  ", "car"},
			want: []string{"car"},
		},
		{
			name: "sorted output",
			in:   []string{"zebra", "apple"},
			want: []string{"apple", "zebra"},
		},
		{
			name: "nil input",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTags(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeTags(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTagsIdempotent(t *testing.T) {
	first := NormalizeTags([]string{"A", "a", " A "})
	second := NormalizeTags(first)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("normalization not idempotent: %v then %v", first, second)
	}
}

func TestParseEntryType(t *testing.T) {
	tests := []struct {
		in      string
		want    EntryType
		wantErr bool
	}{
		{"text", EntryTypeText, false},
		{"PREFERENCE", EntryTypePreference, false},
		{" note ", EntryTypeNote, false},
		{"bogus", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEntryType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEntryType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseEntryType(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestContextEntryValidate(t *testing.T) {
	tests := []struct {
		name    string
		entry   ContextEntry
		wantErr error
	}{
		{
			name:    "valid",
			entry:   ContextEntry{ID: "e1", Content: "hello", Type: EntryTypeText},
			wantErr: nil,
		},
		{
			name:    "empty id",
			entry:   ContextEntry{Content: "hello", Type: EntryTypeText},
			wantErr: ErrEmptyID,
		},
		{
			name:    "empty content",
			entry:   ContextEntry{ID: "e1", Type: EntryTypeText},
			wantErr: ErrEmptyContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestContextEntryValidateUnknownType(t *testing.T) {
	e := ContextEntry{ID: "e1", Content: "hello", Type: EntryType("blob")}
	if err := e.Validate(); err == nil {
		t.Error("expected error for unknown entry type")
	}
}

func TestSetTagsNormalizes(t *testing.T) {
	e := ContextEntry{ID: "e1", Content: "x", Type: EntryTypeText}
	e.SetTags([]string{"Car", " LOCATION ", "car"})
	want := []string{"car", "location"}
	if !reflect.DeepEqual(e.Tags, want) {
		t.Errorf("SetTags stored %v, want %v", e.Tags, want)
	}
	if !e.HasTag("CAR") {
		t.Error("HasTag should match case-insensitively")
	}
}

func TestNormalizeContent(t *testing.T) {
	a := NormalizeContent("I drive a  Tesla\n")
	b := NormalizeContent("i drive a tesla")
	if a != b {
		t.Errorf("normalized forms differ: %q vs %q", a, b)
	}
}

func TestAgeDays(t *testing.T) {
	now := time.Now()
	e := ContextEntry{CreatedAt: now.Add(-48 * time.Hour)}
	got := e.AgeDays(now)
	if got < 1.9 || got > 2.1 {
		t.Errorf("AgeDays = %v, want ~2", got)
	}
}

package models

import (
	"testing"
)

func TestGroupID(t *testing.T) {
	testCases := []struct {
		name     string
		assetIDs []string
		expected string
	}{
		{
			name:     "sorted input",
			assetIDs: []string{"a", "b", "c"},
			expected: "a|b|c",
		},
		{
			name:     "unsorted input yields same id",
			assetIDs: []string{"c", "a", "b"},
			expected: "a|b|c",
		},
		{
			name:     "pair",
			assetIDs: []string{"/photos/b.jpg", "/photos/a.jpg"},
			expected: "/photos/a.jpg|/photos/b.jpg",
		},
		{
			name:     "separator in an id",
			assetIDs: []string{"a|b", "c"},
			expected: `a\|b|c`,
		},
		{
			name:     "backslash in an id",
			assetIDs: []string{`C:\photos\a.jpg`, `C:\photos\b.jpg`},
			expected: `C:\\photos\\a.jpg|C:\\photos\\b.jpg`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := GroupID(tc.assetIDs)
			if result != tc.expected {
				t.Errorf("%v\n\tExpected %v but got %v instead", tc.name, tc.expected, result)
			}
		})
	}
}

func TestGroupIDDoesNotMutateInput(t *testing.T) {
	ids := []string{"z", "a"}
	GroupID(ids)

	if ids[0] != "z" || ids[1] != "a" {
		t.Errorf("expected input slice to be untouched, got %v", ids)
	}
}

func TestGroupIDDistinctMembershipsDistinctIDs(t *testing.T) {
	// Unescaped, both memberships would join to a|b|c.
	first := GroupID([]string{"a|b", "c"})
	second := GroupID([]string{"a", "b|c"})

	if first == second {
		t.Errorf("expected distinct ids for distinct memberships but both are %v", first)
	}
}

func TestHasAsset(t *testing.T) {
	group := DuplicateGroup{
		Items: []DuplicateItem{
			{Asset: AssetRecord{ID: "a"}},
			{Asset: AssetRecord{ID: "b"}},
		},
	}

	if !group.HasAsset("a") {
		t.Errorf("expected group to contain %v", "a")
	}
	if group.HasAsset("c") {
		t.Errorf("expected group not to contain %v", "c")
	}
}

func TestFormatDimensions(t *testing.T) {
	testCases := []struct {
		name     string
		width    int
		height   int
		expected string
	}{
		{"known", 4032, 3024, "4032x3024"},
		{"zero width", 0, 3024, ""},
		{"zero height", 4032, 0, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := FormatDimensions(tc.width, tc.height)
			if result != tc.expected {
				t.Errorf("%v\n\tExpected %v but got %v instead", tc.name, tc.expected, result)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	testCases := []struct {
		name     string
		seconds  float64
		expected string
	}{
		{"image", 0, ""},
		{"short clip", 12.4, "12s"},
		{"minutes", 95, "1m35s"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := FormatDuration(tc.seconds)
			if result != tc.expected {
				t.Errorf("%v\n\tExpected %v but got %v instead", tc.name, tc.expected, result)
			}
		})
	}
}

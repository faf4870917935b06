package utils

import "testing"

func TestSafeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Plain Title", "Plain Title"},
		{"Q&A session", "QandA session"},
		{"Trains – Part 2", "Trains - Part 2"},
		{"What?! A *Video*: [HD]", "What A Video HD"},
		{"  spaced   out  ", "spaced out"},
		{"Ünïcode Nàmes", "Ünïcode Nàmes"},
		{"emoji 🎥 stripped", "emoji stripped"},
		{"", ""},
	}
	for _, c := range cases {
		if got := SafeName(c.in); got != c.want {
			t.Errorf("SafeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	if got := Slugify("My Channel & Friends"); got != "my-channel-and-friends" {
		t.Errorf("Slugify = %q", got)
	}
}

func TestSortName(t *testing.T) {
	if got := SortName("The Builders"); got != "Builders, The" {
		t.Errorf("SortName = %q", got)
	}
	if got := SortName("Theme Songs"); got != "Theme Songs" {
		t.Errorf("SortName should not rotate Theme, got %q", got)
	}
}

package lifecycle

import (
	"strings"
	"testing"
)

func TestFontTier(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Shipped v2 of the scheduler", "xl"},
		{strings.Repeat("a", 29), "xl"},
		{strings.Repeat("a", 30), "lg"},
		{strings.Repeat("a", 59), "lg"},
		{strings.Repeat("a", 60), "md"},
		{strings.Repeat("a", 400), "md"},
	}
	for _, tc := range cases {
		if got := fontTier(tc.text); got != tc.want {
			t.Fatalf("fontTier(%d chars) = %q, want %q", len(tc.text), got, tc.want)
		}
	}
}

func TestBuildDesignIntent(t *testing.T) {
	slides := []string{
		"Short hook",
		strings.Repeat("medium length slide text here ", 2),
	}
	intent := BuildDesignIntent(slides)

	if !strings.Contains(intent, "slide 1: font=xl align=center bg=brand") {
		t.Fatalf("hook slide block wrong:\n%s", intent)
	}
	if !strings.Contains(intent, "slide 2: font=md") {
		t.Fatalf("long slide should use the smallest tier:\n%s", intent)
	}
	if !strings.Contains(intent, "text: Short hook") {
		t.Fatalf("slide text missing:\n%s", intent)
	}
}

func TestBuildDesignIntentEmpty(t *testing.T) {
	if got := BuildDesignIntent(nil); got != "" {
		t.Fatalf("intent for no slides = %q", got)
	}
}

package guards

import "testing"

func TestIsEmpty(t *testing.T) {
	cases := map[string]bool{
		"":      true,
		"   ":   true,
		"\t\n":  true,
		"a":     false,
		" oui ": false,
	}
	for in, want := range cases {
		if got := IsEmpty(in); got != want {
			t.Errorf("IsEmpty(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsTooLong(t *testing.T) {
	if IsTooLong("short", 500) {
		t.Error("short text should not be too long")
	}
	long := make([]rune, 501)
	for i := range long {
		long[i] = 'a'
	}
	if !IsTooLong(string(long), 500) {
		t.Error("501-char text should be too long for cap 500")
	}
}

func TestIsFrench(t *testing.T) {
	if !IsFrench("Bonjour, je voudrais prendre un rendez-vous") {
		t.Error("expected clearly French sentence to pass")
	}
	if !IsFrench("oui") {
		t.Error("expected short input to fail open as French")
	}
	if IsFrench("I would like to book an appointment please right now") {
		t.Error("expected clearly English sentence to fail the French check")
	}
}

func TestIsSpamOrAbuse(t *testing.T) {
	if !IsSpamOrAbuse("check out my site http://spam.example") {
		t.Error("expected URL to be flagged as spam")
	}
	if !IsSpamOrAbuse("aaaaaaaaaaaaaaaa") {
		t.Error("expected long repeated rune run to be flagged")
	}
	if IsSpamOrAbuse("bonjour je voudrais un rendez-vous") {
		t.Error("did not expect normal sentence to be flagged")
	}
}

func TestCleanVocalName(t *testing.T) {
	got := CleanVocalName("euh Jean, hum Dupont")
	want := "jean dupont"
	if got != want {
		t.Errorf("CleanVocalName() = %q, want %q", got, want)
	}
}

func TestFoldDiacritics(t *testing.T) {
	if Fold("Étienne") != "etienne" {
		t.Errorf("Fold(%q) = %q, want %q", "Étienne", Fold("Étienne"), "etienne")
	}
}

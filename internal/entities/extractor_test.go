package entities

import "testing"

func TestExtractName(t *testing.T) {
	cases := map[string]string{
		"Jean Dupont":          "Jean Dupont",
		"je suis Jean Dupont":  "Jean Dupont",
		"c'est Marie Curie":    "Marie Curie",
		"euh Jean, hum Dupont": "Jean Dupont",
	}
	for in, want := range cases {
		got, ok := ExtractName(in)
		if !ok {
			t.Errorf("ExtractName(%q) failed, want %q", in, want)
			continue
		}
		if got != want {
			t.Errorf("ExtractName(%q) = %q, want %q", in, got, want)
		}
	}

	for _, in := range []string{"Jean", "Jean Paul Dupont", "12345"} {
		if _, ok := ExtractName(in); ok {
			t.Errorf("ExtractName(%q) should fail closed", in)
		}
	}
}

func TestExtractPhoneDirectDigits(t *testing.T) {
	got, ok := ExtractPhone("06 12 34 56 78")
	if !ok || got != "0612345678" {
		t.Fatalf("ExtractPhone() = %q, %v, want 0612345678, true", got, ok)
	}
}

func TestExtractPhoneWordDictation(t *testing.T) {
	got, ok := ExtractPhone("zéro six, douze, trente-quatre, cinquante-six, soixante-dix-huit")
	if !ok {
		t.Fatal("expected dictated phone number to parse")
	}
	want := "0612345678"
	if got != want {
		t.Fatalf("ExtractPhone() = %q, want %q", got, want)
	}
}

func TestExtractPhoneRejectsGarbage(t *testing.T) {
	if _, ok := ExtractPhone("je ne sais pas"); ok {
		t.Error("expected non-phone text to fail closed")
	}
}

func TestExtractTimePreference(t *testing.T) {
	if got := ExtractTimePreference("plutôt le matin"); got != Morning {
		t.Errorf("got %v, want Morning", got)
	}
	if got := ExtractTimePreference("l'après-midi si possible"); got != Afternoon {
		t.Errorf("got %v, want Afternoon", got)
	}
	if got := ExtractTimePreference("peu importe"); got != Unspecified {
		t.Errorf("got %v, want Unspecified", got)
	}
}

func TestDetectSlotChoiceByOrdinal(t *testing.T) {
	n, ok := DetectSlotChoice("le premier", nil)
	if !ok || n != 1 {
		t.Fatalf("got %d, %v, want 1, true", n, ok)
	}
}

func TestDetectSlotChoiceByDigit(t *testing.T) {
	n, ok := DetectSlotChoice("2", nil)
	if !ok || n != 2 {
		t.Fatalf("got %d, %v, want 2, true", n, ok)
	}
}

func TestDetectSlotChoiceByLabel(t *testing.T) {
	labels := []string{"mardi 10h00", "mercredi 14h00", "jeudi 9h00"}
	n, ok := DetectSlotChoice("celui de mardi", labels)
	if !ok || n != 1 {
		t.Fatalf("got %d, %v, want 1, true", n, ok)
	}
}

func TestDetectSlotChoiceAmbiguous(t *testing.T) {
	if _, ok := DetectSlotChoice("je ne sais pas", nil); ok {
		t.Error("expected ambiguous input to fail closed")
	}
}

package say

import (
	"testing"

	"github.com/felixgeelhaar/intervue/internal/speech"
)

func TestParseSayVoices(t *testing.T) {
	out := []byte(`Alex                en_US    # Most people recognize me by my voice.
Amelie              fr_CA    # Bonjour, je m'appelle Amelie.
Bad News            en_US    # The light you see at the end of the tunnel is the headlamp of a fast approaching train.
Samantha            en_US    # Hello, my name is Samantha.
Eddy (English (UK)) en_GB    # Hello! My name is Eddy.
garbage line
`)

	voices := parseSayVoices(out)
	if len(voices) != 5 {
		t.Fatalf("len(voices) = %d; want 5", len(voices))
	}

	tests := []struct {
		idx    int
		name   string
		locale string
		gender speech.Gender
	}{
		{0, "Alex", "en-US", speech.GenderMale},
		{1, "Amelie", "fr-CA", ""},
		{2, "Bad News", "en-US", ""},
		{3, "Samantha", "en-US", speech.GenderFemale},
		{4, "Eddy (English (UK))", "en-GB", ""},
	}
	for _, tt := range tests {
		v := voices[tt.idx]
		if v.Name != tt.name || v.Locale != tt.locale || v.Gender != tt.gender {
			t.Errorf("voices[%d] = %+v; want name %q locale %q gender %q", tt.idx, v, tt.name, tt.locale, tt.gender)
		}
	}
}

func TestParseEspeakVoices(t *testing.T) {
	out := []byte(`Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  en-gb           --/M      English_(Great_Britain) gmw/en
 5  en-us           --/F      English_(America)  gmw/en-US           (en 10)
`)

	voices := parseEspeakVoices(out)
	if len(voices) != 4 {
		t.Fatalf("len(voices) = %d; want 4", len(voices))
	}
	if voices[0].ID != "en-gb" || voices[0].Gender != speech.GenderMale {
		t.Errorf("voices[0] = %+v", voices[0])
	}
	if voices[1].ID != "en-gb+f3" || voices[1].Gender != speech.GenderFemale {
		t.Errorf("voices[1] = %+v", voices[1])
	}
	if voices[3].ID != "en-us+m3" || voices[3].Gender != speech.GenderMale {
		t.Errorf("voices[3] = %+v", voices[3])
	}

	v, ok := speech.SelectVoice(voices, speech.GenderFemale, "en-GB")
	if !ok || v.ID != "en-gb+f3" {
		t.Errorf("SelectVoice() = %+v, %v; want en-gb+f3", v, ok)
	}
}

func TestEngineArgs(t *testing.T) {
	e := &Engine{bin: "say", flavor: flavorSay}
	args := e.args("Hello there", &speech.Voice{ID: "Samantha"}, speech.SpeakOptions{Rate: 1})
	want := []string{"-v", "Samantha", "-r", "175", "--", "Hello there"}
	assertArgs(t, args, want)

	e = &Engine{bin: "espeak-ng", flavor: flavorEspeak}
	args = e.args("Hi", nil, speech.SpeakOptions{Rate: 0.8, Locale: "en-US"})
	want = []string{"-v", "en-us", "-s", "140", "--", "Hi"}
	assertArgs(t, args, want)
}

func assertArgs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("args = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("args[%d] = %q; want %q", i, got[i], want[i])
		}
	}
}

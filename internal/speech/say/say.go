// Package say speaks through the platform's command-line synthesizer: say
// on macOS, espeak-ng elsewhere.
package say

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/felixgeelhaar/intervue/internal/capability"
	"github.com/felixgeelhaar/intervue/internal/speech"
)

// baseWPM is the default speaking rate of both synthesizers.
const baseWPM = 175

type flavor int

const (
	flavorSay flavor = iota
	flavorEspeak
)

// Engine implements speech.Synthesizer.
type Engine struct {
	bin    string
	flavor flavor
}

// Detect resolves the synthesizer once.
func Detect() capability.Of[speech.Synthesizer] {
	if bin, err := exec.LookPath("say"); err == nil {
		return capability.Available[speech.Synthesizer](&Engine{bin: bin, flavor: flavorSay})
	}
	for _, name := range []string{"espeak-ng", "espeak"} {
		if bin, err := exec.LookPath(name); err == nil {
			return capability.Available[speech.Synthesizer](&Engine{bin: bin, flavor: flavorEspeak})
		}
	}
	return capability.Unavailable[speech.Synthesizer](
		fmt.Errorf("no speech synthesizer installed: %w", capability.ErrUnavailable))
}

// Voices lists the installed voices.
func (e *Engine) Voices(ctx context.Context) ([]speech.Voice, error) {
	var args []string
	if e.flavor == flavorSay {
		args = []string{"-v", "?"}
	} else {
		args = []string{"--voices"}
	}

	out, err := exec.CommandContext(ctx, e.bin, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}

	if e.flavor == flavorSay {
		return parseSayVoices(out), nil
	}
	return parseEspeakVoices(out), nil
}

// Speak starts playback and returns immediately.
func (e *Engine) Speak(ctx context.Context, text string, voice *speech.Voice, opts speech.SpeakOptions) (speech.Utterance, error) {
	args := e.args(text, voice, opts)

	cmd := exec.Command(e.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", e.bin, err)
	}

	u := &utterance{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		u.mu.Lock()
		if err != nil && !u.cancelled {
			u.err = fmt.Errorf("%s: %v: %s", e.bin, err, strings.TrimSpace(stderr.String()))
		}
		u.mu.Unlock()
		close(u.done)
	}()
	return u, nil
}

func (e *Engine) args(text string, voice *speech.Voice, opts speech.SpeakOptions) []string {
	rate := opts.Rate
	if rate <= 0 {
		rate = 1
	}
	wpm := strconv.Itoa(int(math.Round(float64(baseWPM) * rate)))

	var args []string
	switch e.flavor {
	case flavorSay:
		if voice != nil {
			args = append(args, "-v", voice.ID)
		}
		args = append(args, "-r", wpm)
	default:
		switch {
		case voice != nil:
			args = append(args, "-v", voice.ID)
		case opts.Locale != "":
			args = append(args, "-v", strings.ToLower(opts.Locale))
		}
		args = append(args, "-s", wpm)
	}
	return append(args, "--", text)
}

type utterance struct {
	cmd       *exec.Cmd
	done      chan struct{}
	mu        sync.Mutex
	err       error
	cancelled bool
}

func (u *utterance) Done() <-chan struct{} {
	return u.done
}

func (u *utterance) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

func (u *utterance) Cancel() {
	u.mu.Lock()
	if u.cancelled {
		u.mu.Unlock()
		return
	}
	u.cancelled = true
	u.mu.Unlock()

	if u.cmd.Process != nil {
		_ = u.cmd.Process.Kill()
	}
}

// sayVoiceLine matches "Samantha            en_US    # Hello, my name is Samantha."
var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}[_-][A-Za-z0-9]+)\s+#`)

// sayGenders covers the common macOS voices; names are otherwise checked
// for a gender word.
var sayGenders = map[string]speech.Gender{
	"samantha": speech.GenderFemale,
	"karen":    speech.GenderFemale,
	"victoria": speech.GenderFemale,
	"zoe":      speech.GenderFemale,
	"serena":   speech.GenderFemale,
	"fiona":    speech.GenderFemale,
	"moira":    speech.GenderFemale,
	"tessa":    speech.GenderFemale,
	"allison":  speech.GenderFemale,
	"ava":      speech.GenderFemale,
	"susan":    speech.GenderFemale,
	"alex":     speech.GenderMale,
	"daniel":   speech.GenderMale,
	"fred":     speech.GenderMale,
	"oliver":   speech.GenderMale,
	"tom":      speech.GenderMale,
	"rishi":    speech.GenderMale,
	"aaron":    speech.GenderMale,
	"evan":     speech.GenderMale,
}

func parseSayVoices(out []byte) []speech.Voice {
	var voices []speech.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := sayVoiceLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		key := strings.ToLower(name)
		if i := strings.IndexAny(key, " ("); i > 0 {
			key = key[:i]
		}
		voices = append(voices, speech.Voice{
			ID:     name,
			Name:   name,
			Locale: strings.ReplaceAll(m[2], "_", "-"),
			Gender: sayGenders[key],
		})
	}
	return voices
}

// parseEspeakVoices reads the espeak voice table. Every voice is offered
// in its own gender and, through the f3/m3 variants, in the other one.
func parseEspeakVoices(out []byte) []speech.Voice {
	var voices []speech.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		lang, ageGender, name := fields[1], fields[2], strings.ReplaceAll(fields[3], "_", " ")

		gender := speech.GenderMale
		if strings.HasSuffix(ageGender, "/F") {
			gender = speech.GenderFemale
		}
		voices = append(voices, speech.Voice{ID: lang, Name: name, Locale: lang, Gender: gender})

		other, variant := speech.GenderFemale, "+f3"
		if gender == speech.GenderFemale {
			other, variant = speech.GenderMale, "+m3"
		}
		voices = append(voices, speech.Voice{
			ID:     lang + variant,
			Name:   name + " " + string(other),
			Locale: lang,
			Gender: other,
		})
	}
	return voices
}

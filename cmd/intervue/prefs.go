package main

import (
	"github.com/felixgeelhaar/intervue/internal/config"
	"github.com/felixgeelhaar/intervue/internal/interview"
	"github.com/felixgeelhaar/intervue/internal/speech"
)

// prefsStore adapts the YAML preferences file to the controller's store
type prefsStore struct {
	file *config.PreferencesFile
}

var _ interview.PreferenceStore = (*prefsStore)(nil)

func (s *prefsStore) Load() (interview.Preferences, error) {
	p, err := s.file.Load()
	if err != nil {
		return interview.DefaultPreferences(), err
	}
	return interview.Preferences{
		Speaker:     p.Speaker,
		Microphone:  p.Microphone,
		Camera:      p.Camera,
		VoiceGender: speech.ParseGender(p.VoiceGender),
	}, nil
}

func (s *prefsStore) Save(p interview.Preferences) error {
	return s.file.Save(config.Preferences{
		Speaker:     p.Speaker,
		Microphone:  p.Microphone,
		Camera:      p.Camera,
		VoiceGender: string(p.VoiceGender),
	})
}

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pixeleye/sethpirith/res"
	"golang.org/x/text/language"
)

var ErrUnsupportedLocale = errors.New("unsupported locale")

// Localizer resolves track titles, lyrics and notification text
// in the selected locale from the embedded translation files.
type Localizer struct {
	bundle  *i18n.Bundle
	tags    []language.Tag
	matcher language.Matcher

	mu     sync.RWMutex
	locale string
	loc    *i18n.Localizer
}

func NewLocalizer() (*Localizer, error) {
	fallback := language.MustParse(res.TranslationsInfo[0].Name)
	bundle := i18n.NewBundle(fallback)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	l := &Localizer{bundle: bundle}
	for _, tr := range res.TranslationsInfo {
		if _, err := bundle.LoadMessageFileFS(res.Translations, path.Join("translations", tr.TranslationFileName)); err != nil {
			return nil, fmt.Errorf("error loading translation %s: %w", tr.Name, err)
		}
		l.tags = append(l.tags, language.MustParse(tr.Name))
	}
	l.matcher = language.NewMatcher(l.tags)
	l.locale = fallback.String()
	l.loc = i18n.NewLocalizer(bundle, l.locale)
	return l, nil
}

// Normalize maps a locale code such as "si-LK" onto a supported locale.
func (l *Localizer) Normalize(code string) (string, error) {
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLocale, code)
	}
	_, idx, conf := l.matcher.Match(tag)
	if conf == language.No {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLocale, code)
	}
	return l.tags[idx].String(), nil
}

// SetLocale switches the active locale and returns its normalized code.
func (l *Localizer) SetLocale(code string) (string, error) {
	norm, err := l.Normalize(code)
	if err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locale = norm
	l.loc = i18n.NewLocalizer(l.bundle, norm)
	return norm, nil
}

func (l *Localizer) Locale() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.locale
}

func (l *Localizer) SupportedLocales() []string {
	codes := make([]string, len(l.tags))
	for i, t := range l.tags {
		codes[i] = t.String()
	}
	return codes
}

// Translate returns the message for id in the active locale,
// or id itself if no translation exists.
func (l *Localizer) Translate(id string) string {
	return l.localize(&i18n.LocalizeConfig{MessageID: id})
}

func (l *Localizer) TrackTitle(t Track) string {
	return l.Translate(t.TitleKey)
}

func (l *Localizer) TrackLyrics(t Track) string {
	return l.Translate(t.LyricsKey)
}

// TimerText renders the notification line for a running timer.
func (l *Localizer) TimerText(remaining time.Duration) string {
	return l.localize(&i18n.LocalizeConfig{
		MessageID:    "timer_format",
		TemplateData: map[string]string{"Remaining": FormatRemaining(remaining)},
	})
}

func (l *Localizer) localize(cfg *i18n.LocalizeConfig) string {
	l.mu.RLock()
	loc := l.loc
	l.mu.RUnlock()
	s, err := loc.Localize(cfg)
	if err != nil {
		return cfg.MessageID
	}
	return s
}

// TimerPresetLabel returns the localized label for a sleep timer preset.
// A zero duration is the "never" preset.
func (l *Localizer) TimerPresetLabel(d time.Duration) string {
	switch d {
	case 0:
		return l.Translate("label_never")
	case time.Hour:
		return l.Translate("label_1h")
	}
	id := fmt.Sprintf("label_%dm", int(d.Minutes()))
	if s := l.Translate(id); s != id {
		return s
	}
	return d.String()
}

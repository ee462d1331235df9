// Package i18n renders API-facing messages in the site's two locales. Keys are
// an enumerated set and every locale table is sized by that set.
package i18n

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/language"

	"github.com/Clark-Hu/bookshelf/internal/apperr"
)

// Locale identifies a supported locale.
type Locale string

const (
	Arabic  Locale = "ar"
	English Locale = "en"
)

// Key enumerates every translatable message.
type Key int

const (
	KeyUnknownError Key = iota
	KeyInvalidArgument
	KeyInvalidRating
	KeyNotFound
	KeyDuplicateRating
	KeyConcurrencyConflict
	KeyPersistence
	KeyUnauthorized
	KeyMalformedJSON
	KeyEmptyBody
	KeyInvalidField

	keyCount
)

// Resource is one locale's message table.
type Resource interface {
	Locale() Locale
	Lookup(key Key) string
}

type table struct {
	locale   Locale
	messages [keyCount]string
}

func (t *table) Locale() Locale { return t.locale }

func (t *table) Lookup(key Key) string {
	if key < 0 || key >= keyCount {
		return ""
	}
	return t.messages[key]
}

var resources = map[Locale]Resource{
	Arabic:  arabic,
	English: english,
}

// ParseLocale validates a configured locale name.
func ParseLocale(raw string) (Locale, error) {
	loc := Locale(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := resources[loc]; !ok {
		return "", fmt.Errorf("unsupported locale %q", raw)
	}
	return loc, nil
}

// Translator picks a locale per request and renders messages. Build one at
// startup and pass it to whoever needs it.
type Translator struct {
	fallback  Locale
	supported []Locale
	matcher   language.Matcher
}

// NewTranslator returns a Translator that falls back to defaultLocale.
func NewTranslator(defaultLocale Locale) (*Translator, error) {
	if _, ok := resources[defaultLocale]; !ok {
		return nil, fmt.Errorf("unsupported default locale %q", defaultLocale)
	}
	supported := []Locale{defaultLocale}
	for _, loc := range []Locale{Arabic, English} {
		if loc != defaultLocale {
			supported = append(supported, loc)
		}
	}
	tags := make([]language.Tag, 0, len(supported))
	for _, loc := range supported {
		tags = append(tags, language.Make(string(loc)))
	}
	return &Translator{
		fallback:  defaultLocale,
		supported: supported,
		matcher:   language.NewMatcher(tags),
	}, nil
}

// Default returns the fallback locale.
func (t *Translator) Default() Locale {
	return t.fallback
}

// Negotiate resolves the locale for a request. An explicit override such as a
// ?lang= parameter wins over the Accept-Language header.
func (t *Translator) Negotiate(acceptLanguage, override string) Locale {
	if loc, err := ParseLocale(override); err == nil {
		return loc
	}
	if strings.TrimSpace(acceptLanguage) == "" {
		return t.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.fallback
	}
	_, idx, confidence := t.matcher.Match(tags...)
	if confidence == language.No || idx < 0 || idx >= len(t.supported) {
		return t.fallback
	}
	return t.supported[idx]
}

// Message renders key in loc, filling {{.Name}} placeholders from metadata.
func (t *Translator) Message(loc Locale, key Key, metadata map[string]string) string {
	res, ok := resources[loc]
	if !ok {
		res = resources[t.fallback]
	}
	tmpl := res.Lookup(key)
	if tmpl == "" {
		tmpl = resources[English].Lookup(KeyUnknownError)
	}
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	parsed, err := template.New("msg").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return tmpl
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, metadata); err != nil {
		return tmpl
	}
	return buf.String()
}

// KeyFor maps an error code to its message key.
func KeyFor(code apperr.Code) Key {
	switch code {
	case apperr.CodeInvalidArgument:
		return KeyInvalidArgument
	case apperr.CodeInvalidRating:
		return KeyInvalidRating
	case apperr.CodeNotFound:
		return KeyNotFound
	case apperr.CodeDuplicateRating:
		return KeyDuplicateRating
	case apperr.CodeConcurrencyConflict:
		return KeyConcurrencyConflict
	case apperr.CodePersistence:
		return KeyPersistence
	case apperr.CodeUnauthorized:
		return KeyUnauthorized
	default:
		return KeyUnknownError
	}
}

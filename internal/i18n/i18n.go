package i18n

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// BaseLocale используется, если локаль не задана или не поддерживается.
const BaseLocale = "en"

// Translator переводит ключи сообщений для выбранной локали.
type Translator struct {
	tag     language.Tag
	printer *message.Printer
}

// New создает переводчик; неизвестные локали сводятся к ближайшей поддерживаемой.
func New(locale string) (*Translator, error) {
	b, err := buildCatalog()
	if err != nil {
		return nil, err
	}

	supported := b.Languages()
	requested := language.English
	if trimmed := strings.TrimSpace(locale); trimmed != "" {
		requested, err = language.Parse(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", locale, err)
		}
	}
	_, idx, _ := language.NewMatcher(supported).Match(requested)
	tag := supported[idx]

	return &Translator{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(b)),
	}, nil
}

// T возвращает перевод ключа; отсутствующий перевод возвращает сам ключ.
func (t *Translator) T(key string) string {
	if t == nil {
		return key
	}
	// перевод разбирается как формат printer, поэтому % экранируется и в ключе, и в переводах
	return t.printer.Sprintf(message.Key(key, escapePercent(key)))
}

func escapePercent(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

// Locale возвращает выбранную локаль.
func (t *Translator) Locale() string {
	if t == nil {
		return BaseLocale
	}
	return t.tag.String()
}

// Locales возвращает поддерживаемые локали.
func Locales() []string {
	out := []string{BaseLocale}
	for locale := range translations {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out
}

func buildCatalog() (*catalog.Builder, error) {
	// Languages() сортирует теги, "en" идет первым и служит значением Matcher по умолчанию
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	if err := b.SetString(language.English, "help", "help"); err != nil {
		return nil, fmt.Errorf("register base locale: %w", err)
	}

	locales := make([]string, 0, len(translations))
	for locale := range translations {
		locales = append(locales, locale)
	}
	sort.Strings(locales)
	for _, locale := range locales {
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("parse locale tag %q: %w", locale, err)
		}
		for key, value := range translations[locale] {
			if err := b.SetString(tag, key, escapePercent(value)); err != nil {
				return nil, fmt.Errorf("register %s/%q: %w", locale, key, err)
			}
		}
	}
	return b, nil
}

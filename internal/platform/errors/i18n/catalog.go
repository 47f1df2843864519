// Package i18n renders localized user-facing messages for domain error codes.
package i18n

import (
	"bytes"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"
)

// Code is a machine-readable error code (string alias to avoid an import cycle).
type Code = string

// BaseLocale is the canonical source locale for catalogs.
const BaseLocale = "en-US"

// Catalog maps error codes to message templates for a specific locale.
type Catalog struct {
	locale   string
	messages map[Code]string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Catalog{}

	matcherOnce sync.Once
	matcher     language.Matcher
	matchTags   []string
)

// Register installs a catalog for its locale. Later registrations win.
func Register(locale string, messages map[Code]string) {
	locale = strings.TrimSpace(locale)
	if locale == "" || len(messages) == 0 {
		return
	}
	registryMu.Lock()
	registry[locale] = &Catalog{locale: locale, messages: messages}
	registryMu.Unlock()
}

// GetCatalog returns the best catalog for the requested locale.
// Unknown locales fall back to en-US via language matching.
func GetCatalog(locale string) *Catalog {
	requested := strings.TrimSpace(locale)
	if requested == "" {
		requested = BaseLocale
	}

	registryMu.RLock()
	exact, ok := registry[requested]
	registryMu.RUnlock()
	if ok {
		return exact
	}

	resolved := matchLocale(requested)
	registryMu.RLock()
	matched, ok := registry[resolved]
	registryMu.RUnlock()
	if ok {
		return matched
	}

	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[BaseLocale]
}

// Locale returns the locale of this catalog.
func (c *Catalog) Locale() string {
	if c == nil {
		return BaseLocale
	}
	return c.locale
}

// Format renders the message template for code with the given metadata.
// Unknown codes render as the code itself so callers always get something
// presentable.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	if c == nil {
		return code
	}
	tmpl, ok := c.messages[code]
	if !ok {
		return code
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	t, err := template.New("msg").Parse(tmpl)
	if err != nil {
		return tmpl
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, metadata); err != nil {
		return tmpl
	}
	return buf.String()
}

func matchLocale(requested string) string {
	matcherOnce.Do(func() {
		registryMu.RLock()
		tags := make([]language.Tag, 0, len(registry)+1)
		names := make([]string, 0, len(registry)+1)
		// Base locale first so it wins ties and serves as the ultimate fallback.
		tags = append(tags, language.MustParse(BaseLocale))
		names = append(names, BaseLocale)
		for locale := range registry {
			if locale == BaseLocale {
				continue
			}
			tag, err := language.Parse(locale)
			if err != nil {
				continue
			}
			tags = append(tags, tag)
			names = append(names, locale)
		}
		registryMu.RUnlock()
		matcher = language.NewMatcher(tags)
		matchTags = names
	})

	requestedTag, err := language.Parse(requested)
	if err != nil {
		return BaseLocale
	}
	_, index, _ := matcher.Match(requestedTag)
	if index < 0 || index >= len(matchTags) {
		return BaseLocale
	}
	return matchTags[index]
}

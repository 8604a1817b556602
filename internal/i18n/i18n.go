// Package i18n localizes CLI output. Messages live in embedded TOML files,
// one per language.
package i18n

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// EnvLanguage overrides the locale environment
const EnvLanguage = "XAPKPATCH_LANG"

//go:embed locales/*.toml
var localeFS embed.FS

var messageFiles = []string{
	"locales/active.en.toml",
	"locales/active.zh.toml",
}

var supported = []language.Tag{
	language.English,
	language.Chinese,
}

var (
	mu        sync.RWMutex
	localizer *goi18n.Localizer
	current   = language.English
)

// Init loads the message files and picks a language from, in order:
// langOverride (--lang), XAPKPATCH_LANG, LC_ALL, LC_MESSAGES, LANG and the
// platform's UI languages. English is the fallback.
func Init(langOverride string) error {
	b := goi18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	for _, file := range messageFiles {
		if _, err := b.LoadMessageFileFS(localeFS, file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}

	chosen := selectLanguage(localeCandidates(langOverride))

	mu.Lock()
	defer mu.Unlock()
	localizer = goi18n.NewLocalizer(b, chosen.String(), language.English.String())
	current = chosen
	return nil
}

// T translates a message by ID with optional template data. An unknown ID
// is returned unchanged so output is never empty.
func T(id string, data ...map[string]interface{}) string {
	msg, err := localize(id, data...)
	if err != nil {
		return id
	}
	return msg
}

// Has reports whether id is defined for the current language or the fallback
func Has(id string) bool {
	_, err := localize(id)
	return err == nil
}

// CurrentLanguage returns the chosen language tag
func CurrentLanguage() language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func localize(id string, data ...map[string]interface{}) (string, error) {
	mu.RLock()
	l := localizer
	mu.RUnlock()

	if l == nil {
		if err := Init(""); err != nil {
			fmt.Fprintf(os.Stderr, "i18n init failed: %v\n", err)
			return "", err
		}
		mu.RLock()
		l = localizer
		mu.RUnlock()
	}

	var templateData map[string]interface{}
	if len(data) > 0 {
		templateData = data[0]
	}

	msg, err := l.Localize(&goi18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: templateData,
		PluralCount:  pluralCount(templateData),
	})
	if err != nil {
		return "", err
	}
	if msg == "" {
		return "", fmt.Errorf("message %q is empty", id)
	}
	return msg, nil
}

// localeCandidates returns the locale strings to consider. The first source
// that is set wins; an explicit override is never mixed with the environment.
func localeCandidates(langOverride string) []string {
	if s := strings.TrimSpace(langOverride); s != "" {
		return []string{s}
	}
	for _, key := range []string{EnvLanguage, "LC_ALL", "LC_MESSAGES", "LANG"} {
		if s := strings.TrimSpace(os.Getenv(key)); s != "" {
			return []string{s}
		}
	}
	return getPlatformLocales()
}

// selectLanguage maps locale strings such as zh_CN.UTF-8 onto a supported tag
func selectLanguage(candidates []string) language.Tag {
	var tags []language.Tag
	for _, cand := range candidates {
		clean := normalizeLocale(cand)
		if clean == "" || clean == "C" || clean == "POSIX" {
			continue
		}
		// Any Chinese variant gets the single Chinese catalog
		if strings.HasPrefix(strings.ToLower(clean), "zh") {
			return language.Chinese
		}
		if tag, err := language.Parse(clean); err == nil {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return language.English
	}

	_, index, confidence := language.NewMatcher(supported).Match(tags...)
	if confidence == language.No {
		return language.English
	}
	return supported[index]
}

// normalizeLocale strips the codeset and modifier and uses BCP 47 separators
func normalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, "_", "-")
}

func pluralCount(data map[string]interface{}) interface{} {
	for _, key := range []string{"Count", "count", "Total", "total"} {
		if val, ok := data[key]; ok {
			return val
		}
	}
	return nil
}

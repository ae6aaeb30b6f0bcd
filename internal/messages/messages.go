// Package messages localizes user-facing error messages and cleans text
// received from upstream services before it is shown.
//
// Catalogs are YAML files embedded from catalog/, one per language, keyed
// by the support codes of core.MapError:
//
//	language: en
//	messages:
//	  FILE002:
//	    message: "File exceeds the 10 MB limit"
//	    action: "Remove unused sheets or rows and upload again"
package messages

import (
	"embed"
	"fmt"
	"html"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/inventory/internal/core"
)

//go:embed catalog/*.yaml
var embeddedCatalogs embed.FS

// DefaultLanguage is used when a requested language has no catalog.
const DefaultLanguage = "en"

type catalogFile struct {
	Language string                  `yaml:"language"`
	Messages map[string]catalogEntry `yaml:"messages"`
}

type catalogEntry struct {
	Message string `yaml:"message"`
	Action  string `yaml:"action"`
}

// Catalog holds the messages of every loaded language.
type Catalog struct {
	langs map[string]map[string]catalogEntry
}

// Load reads every *.yaml catalog in fsys.
func Load(fsys fs.FS) (*Catalog, error) {
	files, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list catalogs: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no message catalogs found")
	}

	c := &Catalog{langs: make(map[string]map[string]catalogEntry, len(files))}
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", name, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", name, err)
		}
		lang := strings.ToLower(strings.TrimSpace(file.Language))
		if lang == "" {
			lang = strings.TrimSuffix(path.Base(name), path.Ext(name))
		}
		c.langs[lang] = file.Messages
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalogs.
func Default() *Catalog {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embeddedCatalogs, "catalog")
		if err != nil {
			panic(err)
		}
		c, err := Load(sub)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Languages returns the loaded languages in sorted order.
func (c *Catalog) Languages() []string {
	out := make([]string, 0, len(c.langs))
	for lang := range c.langs {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Has reports whether lang has an entry for code.
func (c *Catalog) Has(lang, code string) bool {
	_, ok := c.langs[lang][code]
	return ok
}

// Localize returns msg translated into the primary language of locale. Codes
// missing from that language fall back to English, then to msg itself.
func (c *Catalog) Localize(msg core.UserMessage, locale string) core.UserMessage {
	if msg.Code == "" {
		return msg
	}
	for _, lang := range []string{core.PrimaryLanguage(locale), DefaultLanguage} {
		if e, ok := c.langs[lang][msg.Code]; ok {
			return core.UserMessage{Message: e.Message, Action: e.Action, Code: msg.Code}
		}
	}
	return msg
}

// MapError maps err with core.MapError and localizes the result.
func (c *Catalog) MapError(err error, locale string) core.UserMessage {
	return c.Localize(core.MapError(err), locale)
}

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// Sanitize strips markup from text received from an upstream service and
// returns plain text.
func Sanitize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(trimmed)))
}

// SanitizeAll applies Sanitize to every entry, dropping entries that end up
// empty.
func SanitizeAll(raw []string) []string {
	if len(raw) == 0 {
		return raw
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if clean := Sanitize(s); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

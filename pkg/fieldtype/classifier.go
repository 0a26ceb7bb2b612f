package fieldtype

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-carbonform/pkg/model"
)

// Built-in group identifiers, listed in evaluation order.
const (
	GroupDate    = "date"
	GroupEmail   = "email"
	GroupPhone   = "phone"
	GroupURL     = "url"
	GroupInteger = "integer"
	GroupDecimal = "decimal"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9\s().-]{7,20}$`)
	urlPattern   = regexp.MustCompile(`^https?://[^\s/$.?#][^\s]*$`)
)

// Group pairs an ordered pattern list with the configuration returned when any
// pattern matches the lower-cased "name title" search string.
type Group struct {
	Name     string
	Patterns []*regexp.Regexp
	Config   model.FieldTypeConfig
}

type rule struct {
	group    Group
	priority int
	order    int
}

// Classifier infers field types from names and titles. Groups are evaluated by
// descending priority, ties by registration order; the first group with a
// matching pattern wins and unmatched fields fall back to text.
type Classifier struct {
	mu    sync.RWMutex
	rules []rule
}

// NewClassifier returns a classifier with the built-in groups registered.
func NewClassifier() *Classifier {
	c := &Classifier{}
	c.registerBuiltins()
	return c
}

var defaultClassifier = NewClassifier()

// Classify runs the built-in table against the field name and title.
func Classify(fieldName, fieldTitle string) model.FieldTypeConfig {
	return defaultClassifier.Classify(fieldName, fieldTitle)
}

// Register adds a group with the given priority. Built-ins use priorities
// 100 (date) down to 50 (decimal) in steps of ten.
func (c *Classifier) Register(group Group, priority int) {
	if c == nil || len(group.Patterns) == 0 {
		return
	}
	group.Name = strings.TrimSpace(group.Name)
	if group.Name == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = append(c.rules, rule{group: group, priority: priority, order: len(c.rules)})
	sort.SliceStable(c.rules, func(i, j int) bool {
		if c.rules[i].priority == c.rules[j].priority {
			return c.rules[i].order < c.rules[j].order
		}
		return c.rules[i].priority > c.rules[j].priority
	})
}

// Classify returns the configuration of the first matching group.
func (c *Classifier) Classify(fieldName, fieldTitle string) model.FieldTypeConfig {
	cfg, _ := c.Match(fieldName, fieldTitle)
	return cfg
}

// Match is Classify that also reports which group matched. An empty group name
// means the text default was used.
func (c *Classifier) Match(fieldName, fieldTitle string) (model.FieldTypeConfig, string) {
	if c == nil {
		return TextConfig(), ""
	}
	search := strings.ToLower(strings.TrimSpace(fieldName + " " + fieldTitle))
	if search == "" {
		return TextConfig(), ""
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, entry := range c.rules {
		for _, pattern := range entry.group.Patterns {
			if pattern.MatchString(search) {
				return cloneConfig(entry.group.Config), entry.group.Name
			}
		}
	}
	return TextConfig(), ""
}

// Groups lists the registered group names in evaluation order.
func (c *Classifier) Groups() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.rules))
	for _, entry := range c.rules {
		out = append(out, entry.group.Name)
	}
	return out
}

// TextConfig is the fallback configuration.
func TextConfig() model.FieldTypeConfig {
	return model.FieldTypeConfig{InputKind: model.InputText}
}

func cloneConfig(cfg model.FieldTypeConfig) model.FieldTypeConfig {
	if cfg.Min != nil {
		cfg.Min = model.Bound(*cfg.Min)
	}
	if cfg.Max != nil {
		cfg.Max = model.Bound(*cfg.Max)
	}
	return cfg
}

// word matches term when it is not embedded in a longer alphabetic token.
// Underscores and digits count as separators since field names are snake_case.
func word(term string) *regexp.Regexp {
	return regexp.MustCompile(`(^|[^a-z])` + term + `([^a-z]|$)`)
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(expr))
	}
	return out
}

func (c *Classifier) registerBuiltins() {
	c.Register(Group{
		Name: GroupDate,
		Patterns: append(patterns(
			`date`,
			`departure`,
			`arrival`,
			`check[-_ ]?in`,
			`check[-_ ]?out`,
		), word(`time`)),
		Config: model.FieldTypeConfig{InputKind: model.InputDate},
	}, 100)

	c.Register(Group{
		Name:     GroupEmail,
		Patterns: patterns(`e-?mail`),
		Config:   model.FieldTypeConfig{InputKind: model.InputEmail, Pattern: emailPattern},
	}, 90)

	c.Register(Group{
		Name:     GroupPhone,
		Patterns: append(patterns(`phone`, `mobile`), word(`tel`)),
		Config:   model.FieldTypeConfig{InputKind: model.InputTel, Pattern: phonePattern},
	}, 80)

	c.Register(Group{
		Name:     GroupURL,
		Patterns: append(patterns(`website`, `homepage`, `link`), word(`url`)),
		Config:   model.FieldTypeConfig{InputKind: model.InputURL, Pattern: urlPattern},
	}, 70)

	c.Register(Group{
		Name: GroupInteger,
		Patterns: append(patterns(
			`distance`,
			`weight`,
			`passengers?`,
			`hours?`,
			`days?`,
			`nights?`,
			`count($|[^r])`, // not country
			`number[-_ ]of`,
			`quantity`,
			`amount`,
			`miles?`,
			`tonnes?`,
			`rooms?`,
		), word(`km`), word(`kg`)),
		Config: model.FieldTypeConfig{
			InputKind: model.InputNumber,
			IsInteger: true,
			Min:       model.Bound(0),
		},
	}, 60)

	c.Register(Group{
		Name: GroupDecimal,
		Patterns: patterns(
			`price`,
			`cost`,
			`(^|[^a-z])rate`,
			`percent(age)?`,
			`factor`,
			`ratio`,
			`spend`,
		),
		Config: model.FieldTypeConfig{
			InputKind:     model.InputNumber,
			AllowDecimals: true,
			Min:           model.Bound(0),
		},
	}, 50)
}

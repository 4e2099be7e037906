// Package moderation implements the content filter collaborator: a
// pure function from text to a filtering decision. It never touches
// persistence; enforcement of the decision belongs to the callers.
package moderation

import "strings"

type Action string

const (
	ActionAllow   Action = "allow"
	ActionWarn    Action = "warn"
	ActionBlock   Action = "block"
	ActionReplace Action = "replace"
)

type Level string

const (
	LevelStrict   Level = "strict"
	LevelModerate Level = "moderate"
	LevelLoose    Level = "loose"
)

// DefaultSensitiveWords is the built-in wordlist.
var DefaultSensitiveWords = []string{
	"暴力", "打架", "斗殴", "杀人", "伤害",
	"色情", "黄色", "裸体", "性交", "淫荡",
	"赌博", "赌场", "老虎机", "彩票", "博彩",
	"毒品", "吸毒", "海洛因", "冰毒", "大麻",
	"诈骗", "骗钱", "传销", "非法集资", "洗钱",
	"推翻", "颠覆", "反动", "暴乱",
	"自杀", "爆炸", "恐怖主义", "人口贩卖",
}

type Result struct {
	Action       Action   `json:"action"`
	FilteredText string   `json:"filtered_text"`
	Matches      []string `json:"matches"`
}

type Filter struct {
	level     Level
	enabled   bool
	words     []string
	whitelist map[string]bool
}

type Option func(*Filter)

func WithLevel(level Level) Option {
	return func(f *Filter) { f.level = level }
}

func WithCustomWords(words ...string) Option {
	return func(f *Filter) { f.words = append(f.words, words...) }
}

func WithWhitelist(words ...string) Option {
	return func(f *Filter) {
		for _, w := range words {
			f.whitelist[w] = true
		}
	}
}

func Disabled() Option {
	return func(f *Filter) { f.enabled = false }
}

func NewFilter(opts ...Option) *Filter {
	f := &Filter{
		level:     LevelModerate,
		enabled:   true,
		words:     append([]string(nil), DefaultSensitiveWords...),
		whitelist: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FilterContent scans text against the wordlist and decides an
// action based on the configured level. Matched words are replaced
// with asterisks of the same length in FilteredText.
func (f *Filter) FilterContent(text string) Result {
	if !f.enabled || text == "" {
		return Result{Action: ActionAllow, FilteredText: text}
	}

	lower := strings.ToLower(text)
	filtered := text
	var matches []string
	for _, word := range f.words {
		if f.whitelist[word] {
			continue
		}
		if strings.Contains(lower, strings.ToLower(word)) {
			matches = append(matches, word)
			filtered = replaceFold(filtered, word)
		}
	}

	if len(matches) == 0 {
		return Result{Action: ActionAllow, FilteredText: text}
	}

	var action Action
	switch f.level {
	case LevelStrict:
		action = ActionBlock
	case LevelModerate:
		if len(matches) >= 3 {
			action = ActionBlock
		} else {
			action = ActionReplace
		}
	case LevelLoose:
		if len(matches) >= 5 {
			action = ActionBlock
		} else {
			action = ActionReplace
		}
	default:
		action = ActionWarn
	}

	result := Result{Action: action, FilteredText: text, Matches: matches}
	if action == ActionReplace {
		result.FilteredText = filtered
	}
	return result
}

// replaceFold replaces case-insensitive occurrences of word with a
// run of asterisks matching its rune length.
func replaceFold(text, word string) string {
	mask := strings.Repeat("*", len([]rune(word)))
	lowerWord := strings.ToLower(word)

	var b strings.Builder
	for {
		idx := strings.Index(strings.ToLower(text), lowerWord)
		if idx < 0 {
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:idx])
		b.WriteString(mask)
		text = text[idx+len(lowerWord):]
	}
}

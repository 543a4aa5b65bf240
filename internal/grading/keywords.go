package grading

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeywordRule requires one of Markers to appear in code submitted for items tagged Tag.
// Markers are matched as substrings of the lower-cased code.
type KeywordRule struct {
	Tag      string   `yaml:"tag"`
	Markers  []string `yaml:"markers"`
	Feedback string   `yaml:"feedback"`
	Hint     string   `yaml:"hint"`
}

func (r KeywordRule) satisfiedBy(lowered string) bool {
	for _, m := range r.Markers {
		if strings.Contains(lowered, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// DefaultKeywordRules is the built-in rule table, evaluated in order.
func DefaultKeywordRules() []KeywordRule {
	return []KeywordRule{
		{
			Tag:      "print",
			Markers:  []string{"print(", "println(", "printf(", "console.log(", "fmt.print", "system.out.print", "puts ", "echo "},
			Feedback: "Your code never produces any output. This challenge expects you to display a result, so add an output call such as print() and try again!",
			Hint:     "Use print() (or your language's output call) to display the result",
		},
		{
			Tag:      "functions",
			Markers:  []string{"def ", "function ", "func ", "fn ", "=>"},
			Feedback: "This challenge requires you to define a function. Wrap your logic in a named function and check the lesson content for the correct syntax!",
			Hint:     "Define a function, e.g. def function_name(parameters):",
		},
		{
			Tag:      "loops",
			Markers:  []string{"for ", "for(", "while ", "while(", ".foreach(", ".map("},
			Feedback: "This challenge is about repetition, but your code has no loop. Think about which steps repeat and put them inside a loop.",
			Hint:     "Use a for or while loop to repeat the steps",
		},
		{
			Tag:      "conditionals",
			Markers:  []string{"if ", "if(", "switch", "match ", "? "},
			Feedback: "Your solution needs to make a decision, but there is no conditional in your code. Check which cases behave differently.",
			Hint:     "Use an if statement to handle the different cases",
		},
	}
}

// LoadKeywordRules reads a rule table from a YAML file of the form `rules: [...]`.
func LoadKeywordRules(path string) ([]KeywordRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword rules: %w", err)
	}

	var doc struct {
		Rules []KeywordRule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse keyword rules: %w", err)
	}

	for i, r := range doc.Rules {
		if r.Tag == "" {
			return nil, fmt.Errorf("keyword rule %d: tag is required", i)
		}
		if len(r.Markers) == 0 {
			return nil, fmt.Errorf("keyword rule %q: at least one marker is required", r.Tag)
		}
		if r.Feedback == "" {
			return nil, fmt.Errorf("keyword rule %q: feedback is required", r.Tag)
		}
	}
	return doc.Rules, nil
}

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompt template names.
const (
	PromptClassification             = "classification"
	PromptQueryGeneration            = "query_generation"
	PromptValidationPlan             = "validation_plan"
	PromptValidationVoting           = "validation_voting"
	PromptAnswerGeneration           = "answer_generation"
	PromptAnswerGenerationWithVoting = "answer_generation_with_voting"
)

var requiredPrompts = []string{
	PromptClassification,
	PromptQueryGeneration,
	PromptValidationPlan,
	PromptValidationVoting,
	PromptAnswerGeneration,
	PromptAnswerGenerationWithVoting,
}

// Prompts is a named set of templates with positional {} placeholders.
type Prompts map[string]string

// DefaultPrompts returns the built-in template set.
func DefaultPrompts() Prompts {
	return Prompts{
		PromptClassification: "Классифицируй входящее сообщение: {}\n" +
			"(никаких слов, кроме номера из списка)\n" +
			"1. Приветствие\n" +
			"2. Благодарность\n" +
			"3. Один бухгалтерский или юридический вопрос\n" +
			"4. Несколько разных вопросов в одном сообщении\n" +
			"5. Другое",
		PromptQueryGeneration: "Ты опытный бухгалтер и юрист. Пользователь задал вопрос: {}\n" +
			"Сформулируй от 3 до 5 поисковых запросов, которые помогут найти ответ в справочной системе.\n" +
			"Каждый запрос пиши с новой строки в формате \"Вопрос1: ...\", \"Вопрос2: ...\" и так далее.",
		PromptValidationPlan: "Ты опытный бухгалтер и юрист. Вопрос пользователя: {}\n\n" +
			"Ниже приведены фрагменты материалов справочной системы:\n{}\n\n" +
			"Составь аналитическую записку: какие фрагменты относятся к вопросу, что из них следует, " +
			"каких сведений не хватает. Указывай ссылки на тексты, на которые опираешься.",
		PromptValidationVoting: "Собрали 3х независимых экспертов. Каждый из них изучил вопрос пользователя, " +
			"аналитическую записку и тексты материалов.\n\n" +
			"Вопрос: {}\n\nАналитическая записка:\n{}\n\nТексты материалов:\n{}\n\n" +
			"Каждый эксперт решает, можно ли по этим материалам ответить на вопрос. " +
			"В конце напиши строго одну из фраз: \"Общее мнение: есть ответ\" или \"Общее мнение: НЕТ ответа\".",
		PromptAnswerGeneration: "Ты опытный бухгалтер и юрист. Ответь на вопрос пользователя: {}\n\n" +
			"Аналитическая записка:\n{}\n\nТексты материалов:\n{}\n\n" +
			"Эксперты подтвердили, что материалов достаточно для ответа. " +
			"Дай точный ответ со ссылками на использованные тексты.",
		PromptAnswerGenerationWithVoting: "Ты опытный бухгалтер и юрист. Ответь на вопрос пользователя: {}\n\n" +
			"Аналитическая записка:\n{}\n\nТексты материалов:\n{}\n\n" +
			"Если из полученной \"Аналитической записки\" и \"Текстов материалов\" нельзя ответить на вопрос, " +
			"напиши только \"НЕТ ОТВЕТА\". Иначе дай точный ответ со ссылками на использованные тексты.",
	}
}

// LoadPrompts reads a YAML or JSON mapping of template name to text and
// layers it over the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts %s failed, err: %w", path, err)
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse prompts %s failed, err: %w", path, err)
	}
	for name, text := range overrides {
		prompts[name] = text
	}
	if err := prompts.Validate(); err != nil {
		return nil, err
	}
	return prompts, nil
}

// Validate checks that every template used by the pipeline is present.
func (p Prompts) Validate() error {
	var errs ValidationErrors
	for _, name := range requiredPrompts {
		if strings.TrimSpace(p[name]) == "" {
			errs = append(errs, ValidationError{Field: "prompts." + name, Message: "prompt template is missing"})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Names returns the template names in sorted order.
func (p Prompts) Names() []string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render fills the named template with args.
func (p Prompts) Render(name string, args ...string) (string, error) {
	tmpl, ok := p[name]
	if !ok {
		return "", fmt.Errorf("prompt template %q not found", name)
	}
	return Format(tmpl, args...)
}

// Format substitutes positional placeholders. "{}" takes the next argument,
// "{N}" takes argument N, "{{" and "}}" produce literal braces. Any other
// brace sequence is copied unchanged.
func Format(tmpl string, args ...string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))
	next := 0
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch {
		case ch == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case ch == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				b.WriteString(tmpl[i:])
				return b.String(), nil
			}
			field := tmpl[i+1 : i+end]
			idx := -1
			if field == "" {
				idx = next
				next++
			} else if n, err := strconv.Atoi(field); err == nil {
				idx = n
			} else {
				b.WriteString(tmpl[i : i+end+1])
				i += end
				continue
			}
			if idx < 0 || idx >= len(args) {
				return "", fmt.Errorf("placeholder %d has no argument (%d given)", idx, len(args))
			}
			b.WriteString(args[idx])
			i += end
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}

package reliability

import (
	"errors"
	"fmt"
	"strings"
)

// Category tags a pipeline failure. Values are the wire strings clients see.
type Category string

const (
	CategorySTT     Category = "stt_error"
	CategoryLLM     Category = "llm_error"
	CategoryTTS     Category = "tts_error"
	CategoryFile    Category = "file_error"
	CategoryNetwork Category = "network_error"
	CategoryConfig  Category = "config_error"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategorySTT,
	CategoryLLM,
	CategoryTTS,
	CategoryFile,
	CategoryNetwork,
	CategoryConfig,
}

// ParseCategory accepts the wire form ("llm_error") or the upper-case tag ("LLM_ERROR").
func ParseCategory(v string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == v || strings.ToUpper(string(c)) == v {
			return c, true
		}
	}
	return "", false
}

var fallbackTexts = map[Category]string{
	CategorySTT:     "I'm sorry, I'm having trouble understanding your audio right now. Could you please try speaking again?",
	CategoryLLM:     "I'm experiencing some technical difficulties processing your request. Please try again in a moment.",
	CategoryTTS:     "I understood your request but I'm having trouble generating audio. Here's my text response.",
	CategoryFile:    "I couldn't process that audio file. Please record your message again and resend it.",
	CategoryNetwork: "I'm having trouble connecting to my services right now. Please check your connection and try again.",
	CategoryConfig:  "The service is temporarily unavailable due to configuration issues. Please try again later.",
}

// FallbackText returns the canned reply substituted for a failed stage.
func FallbackText(c Category) string {
	if text, ok := fallbackTexts[c]; ok {
		return text
	}
	return fallbackTexts[CategoryNetwork]
}

// Error carries a failure category alongside the underlying cause.
type Error struct {
	Category Category
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Category)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with a category. A nil err still produces an error value.
func Wrap(c Category, op string, err error) *Error {
	return &Error{Category: c, Op: op, Err: err}
}

// CategoryOf extracts the category from err, or returns fallback when none is attached.
func CategoryOf(err error, fallback Category) Category {
	var e *Error
	if errors.As(err, &e) && e.Category != "" {
		return e.Category
	}
	return fallback
}

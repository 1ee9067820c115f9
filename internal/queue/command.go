package queue

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	verbPublish  = "PUBLISH"
	verbRetrieve = "RETRIEVE"
)

// CommandKind tags a Command.
type CommandKind int

const (
	CommandPublish CommandKind = iota + 1
	CommandRetrieve
)

func (k CommandKind) String() string {
	switch k {
	case CommandPublish:
		return verbPublish
	case CommandRetrieve:
		return verbRetrieve
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is a parsed request. Message is only set for CommandPublish.
type Command struct {
	Kind    CommandKind
	Message string
}

func (c Command) String() string {
	if c.Kind == CommandPublish {
		return fmt.Sprintf("%s(%q)", c.Kind, c.Message)
	}
	return c.Kind.String()
}

// ParseErrorKind identifies why a request could not be parsed.
type ParseErrorKind int

const (
	ErrKindEmptyMessage ParseErrorKind = iota + 1
	ErrKindUnknownVerb
	ErrKindMissingPayload
	ErrKindUnexpectedPayload
	ErrKindTrailingData
	ErrKindInvalidEncoding
)

var parseErrorText = map[ParseErrorKind]string{
	ErrKindEmptyMessage:      "Empty message",
	ErrKindUnknownVerb:       "Unknown verb",
	ErrKindMissingPayload:    "Missing payload",
	ErrKindUnexpectedPayload: "Unexpected payload",
	ErrKindTrailingData:      "Trailing data",
	ErrKindInvalidEncoding:   "Invalid UTF-8",
}

// ParseError is returned by Parse. Its Error text is what clients see between
// "Error: " and "!".
type ParseError struct {
	Kind  ParseErrorKind
	Input string
}

func (e *ParseError) Error() string {
	if text, ok := parseErrorText[e.Kind]; ok {
		return text
	}
	return "Malformed request"
}

// Is matches on Kind so the sentinels below work with errors.Is.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind
}

var (
	ErrEmptyMessage      = &ParseError{Kind: ErrKindEmptyMessage}
	ErrUnknownVerb       = &ParseError{Kind: ErrKindUnknownVerb}
	ErrMissingPayload    = &ParseError{Kind: ErrKindMissingPayload}
	ErrUnexpectedPayload = &ParseError{Kind: ErrKindUnexpectedPayload}
	ErrTrailingData      = &ParseError{Kind: ErrKindTrailingData}
	ErrInvalidEncoding   = &ParseError{Kind: ErrKindInvalidEncoding}
)

// Parse turns the raw text of one request into a Command.
//
// A single trailing "\n" or "\r\n" is accepted and stripped. The verb is
// separated from the payload by the first space; the PUBLISH payload is
// trimmed of surrounding whitespace and must not be empty.
func Parse(input string) (Command, error) {
	if !utf8.ValidString(input) {
		return Command{}, &ParseError{Kind: ErrKindInvalidEncoding, Input: input}
	}

	line := strings.TrimSuffix(input, "\n")
	line = strings.TrimSuffix(line, "\r")

	if strings.Contains(line, "\n") {
		return Command{}, &ParseError{Kind: ErrKindTrailingData, Input: input}
	}

	verb, payload, hasPayload := strings.Cut(line, " ")

	switch verb {
	case "":
		if hasPayload {
			return Command{}, &ParseError{Kind: ErrKindUnknownVerb, Input: input}
		}
		return Command{}, &ParseError{Kind: ErrKindEmptyMessage, Input: input}
	case verbRetrieve:
		if hasPayload {
			return Command{}, &ParseError{Kind: ErrKindUnexpectedPayload, Input: input}
		}
		return Command{Kind: CommandRetrieve}, nil
	case verbPublish:
		msg := strings.TrimSpace(payload)
		if !hasPayload || msg == "" {
			return Command{}, &ParseError{Kind: ErrKindMissingPayload, Input: input}
		}
		return Command{Kind: CommandPublish, Message: msg}, nil
	default:
		return Command{}, &ParseError{Kind: ErrKindUnknownVerb, Input: input}
	}
}

/*
 *
 *  * Licensed to the Apache Software Foundation (ASF) under one or more
 *  * contributor license agreements.  See the NOTICE file distributed with
 *  * this work for additional information regarding copyright ownership.
 *  * The ASF licenses this file to You under the Apache License, Version 2.0
 *  * (the "License"); you may not use this file except in compliance with
 *  * the License.  You may obtain a copy of the License at
 *  *
 *  *     http://www.apache.org/licenses/LICENSE-2.0
 *  *
 *  * Unless required by applicable law or agreed to in writing, software
 *  * distributed under the License is distributed on an "AS IS" BASIS,
 *  * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *  * See the License for the specific language governing permissions and
 *  * limitations under the License.
 *
 */

// Package protocol implements version 1 of the topic hub line protocol:
// newline-delimited ASCII commands with a fixed maximum line length.
//
//	PUBLISHER | SUBSCRIBER          role handshake, first line of a connection
//	[topic] "text"                  publish, relayed verbatim to subscribers
//	/subscribe "t1" "t2" ...        subscribe to existing topics
//	/unsubscribe "t1" ...           drop subscriptions
//	/topics                         list topics
//	/exit                           close the connection
package protocol

import (
	"errors"
	"strings"
)

const Version = "1"

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingBracket = errors.New("missing closing bracket after topic")
	ErrMissingQuotes  = errors.New("text must be enclosed in double quotes")
	ErrEmptyTopic     = errors.New("topic cannot be empty")
	ErrEmptyText      = errors.New("text cannot be empty")
	ErrNoTopics       = errors.New("no topics specified")
	ErrInvalidFormat  = errors.New("invalid format")
	ErrEmptyTopicName = errors.New("topic name cannot be empty")
)

type Kind int

const (
	KindInvalid Kind = iota
	KindPublish
	KindSubscribe
	KindUnsubscribe
	KindListTopics
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindPublish:
		return "publish"
	case KindSubscribe:
		return "subscribe"
	case KindUnsubscribe:
		return "unsubscribe"
	case KindListTopics:
		return "topics"
	case KindExit:
		return "exit"
	default:
		return "invalid"
	}
}

const (
	cmdSubscribe   = "/subscribe"
	cmdUnsubscribe = "/unsubscribe"
	cmdTopics      = "/topics"
	cmdExit        = "/exit"
)

// Command is one parsed protocol line.
type Command struct {
	Kind Kind

	// Publish
	Topic string
	Text  string

	// Subscribe / Unsubscribe, in input order
	Topics []string

	// Invalid: Err is the reason, Verb the command word when it was recognized.
	Err  error
	Verb string
}

func invalid(verb string, err error) Command {
	return Command{Kind: KindInvalid, Verb: verb, Err: err}
}

// Parse turns one line into a Command. Trailing whitespace and the line
// terminator are stripped before validation. Parse has no side effects.
func Parse(line string) Command {
	line = strings.TrimRight(line, " \t\r\n")
	if line == "" {
		return invalid("", ErrUnknownCommand)
	}
	switch line[0] {
	case '[':
		return parsePublish(line)
	case '/':
		return parseControl(line)
	}
	return invalid("", ErrUnknownCommand)
}

func parsePublish(line string) Command {
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return invalid("", ErrMissingBracket)
	}
	topic := line[1:end]
	if topic == "" {
		return invalid("", ErrEmptyTopic)
	}
	if strings.ContainsAny(topic, "[\"") {
		return invalid("", ErrInvalidFormat)
	}

	rest := line[end+1:]
	if !strings.HasPrefix(rest, " ") {
		return invalid("", ErrMissingQuotes)
	}
	rest = rest[1:]
	if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return invalid("", ErrMissingQuotes)
	}
	text := rest[1 : len(rest)-1]
	if text == "" {
		return invalid("", ErrEmptyText)
	}
	// exactly one quoted segment
	if strings.IndexByte(text, '"') >= 0 {
		return invalid("", ErrInvalidFormat)
	}
	return Command{Kind: KindPublish, Topic: topic, Text: text}
}

func parseControl(line string) Command {
	verb, rest := line, ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		verb, rest = line[:i], line[i+1:]
	}

	switch verb {
	case cmdSubscribe, cmdUnsubscribe:
		topics, err := parseTopics(rest)
		if err != nil {
			return invalid(verb, err)
		}
		kind := KindSubscribe
		if verb == cmdUnsubscribe {
			kind = KindUnsubscribe
		}
		return Command{Kind: kind, Topics: topics}
	case cmdTopics, cmdExit:
		if strings.TrimSpace(rest) != "" {
			return invalid(verb, ErrInvalidFormat)
		}
		if verb == cmdExit {
			return Command{Kind: KindExit}
		}
		return Command{Kind: KindListTopics}
	}
	return invalid("", ErrUnknownCommand)
}

// parseTopics reads one or more double-quoted, whitespace separated tokens.
func parseTopics(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrNoTopics
	}
	var topics []string
	for s != "" {
		if s[0] != '"' {
			return nil, ErrInvalidFormat
		}
		end := strings.IndexByte(s[1:], '"')
		if end < 0 {
			return nil, ErrInvalidFormat
		}
		tok := s[1 : end+1]
		if tok == "" {
			return nil, ErrEmptyTopicName
		}
		topics = append(topics, tok)

		s = s[end+2:]
		if s != "" && s[0] != ' ' && s[0] != '\t' {
			return nil, ErrInvalidFormat
		}
		s = strings.TrimLeft(s, " \t")
	}
	return topics, nil
}

// FormatPublish builds a publish line and validates it the way the server will.
func FormatPublish(topic, text string) (string, error) {
	line := "[" + topic + "] \"" + text + "\"\n"
	if cmd := Parse(line); cmd.Kind != KindPublish {
		return "", cmd.Err
	}
	return line, nil
}

// FormatTopics builds a /subscribe or /unsubscribe line.
func FormatTopics(kind Kind, topics ...string) (string, error) {
	verb := cmdSubscribe
	if kind == KindUnsubscribe {
		verb = cmdUnsubscribe
	} else if kind != KindSubscribe {
		return "", ErrUnknownCommand
	}
	var b strings.Builder
	b.WriteString(verb)
	for _, t := range topics {
		b.WriteString(" \"")
		b.WriteString(t)
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	line := b.String()
	if cmd := Parse(line); cmd.Kind != kind {
		return "", cmd.Err
	}
	return line, nil
}

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

package protocol

import (
	"errors"
	"fmt"
	"strings"
)

const InfoPrefix = "[INFO] "

const (
	NoTopicsAvailable = "No topics available yet.\n"
	topicsHeader      = "Currently available topics:\n"
	topicsHint        = "Use /subscribe \"topic1\" \"topic2\" to subscribe.\n"
)

func Info(format string, args ...interface{}) []byte {
	return []byte(InfoPrefix + fmt.Sprintf(format, args...) + "\n")
}

func Subscribed(topic string) []byte        { return Info("Subscribed to '%s'", topic) }
func AlreadySubscribed(topic string) []byte { return Info("Already subscribed to '%s'", topic) }
func TopicNotFound(topic string) []byte     { return Info("Topic '%s' does not exist.", topic) }
func Unsubscribed(topic string) []byte      { return Info("Unsubscribed from '%s'", topic) }
func NotSubscribed(topic string) []byte     { return Info("Not subscribed to '%s'", topic) }

func PublishNotAllowed() []byte {
	return Info("Error: publishing is only allowed on publisher connections.")
}

func PublisherCommandNotAllowed() []byte {
	return Info("Error: publisher connections can only publish.")
}

func Published(topic string, receivers int) []byte {
	return Info("Published to '%s' (%d subscribers)", topic, receivers)
}

// TopicList renders the reply to /topics.
func TopicList(names []string) []byte {
	if len(names) == 0 {
		return []byte(NoTopicsAvailable)
	}
	var b strings.Builder
	b.WriteString(topicsHeader)
	for _, n := range names {
		b.WriteString("  - ")
		b.WriteString(n)
		b.WriteByte('\n')
	}
	b.WriteString(topicsHint)
	return []byte(b.String())
}

// Rejection renders the [INFO] reply for a line that could not be accepted.
// err is either a Command.Err or ErrLineTooLong from the framing layer.
func Rejection(verb string, err error, maxLineBytes int) []byte {
	usage := cmdSubscribe
	if verb == cmdUnsubscribe {
		usage = cmdUnsubscribe
	}
	switch {
	case errors.Is(err, ErrLineTooLong):
		return Info("Error: message too long (max %d bytes).", maxLineBytes)
	case errors.Is(err, ErrNoTopics):
		return Info("No topics specified. Use %s \"topic1\" \"topic2\".", usage)
	case errors.Is(err, ErrEmptyTopicName):
		return Info("Error: Topic name cannot be empty.")
	case errors.Is(err, ErrInvalidFormat) && verb != "":
		if verb == cmdTopics || verb == cmdExit {
			return Info("Error: invalid format. Use %s.", verb)
		}
		return Info("Error: invalid format. Use %s \"topic1\" \"topic2\".", usage)
	case errors.Is(err, ErrUnknownCommand):
		return Info("Unknown command. Use /subscribe \"topic1\" \"topic2\", /unsubscribe \"topic1\" \"topic2\", or /topics.")
	}
	return Info("Error: invalid publish format (%v). Correct format: [topic] \"text\"", err)
}

// Reason is a short metric label for a rejection error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrLineTooLong):
		return "too_long"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ErrMissingBracket):
		return "missing_bracket"
	case errors.Is(err, ErrMissingQuotes):
		return "missing_quotes"
	case errors.Is(err, ErrEmptyTopic), errors.Is(err, ErrEmptyTopicName):
		return "empty_topic"
	case errors.Is(err, ErrEmptyText):
		return "empty_text"
	case errors.Is(err, ErrNoTopics):
		return "no_topics"
	case errors.Is(err, ErrInvalidFormat):
		return "invalid_format"
	}
	return "other"
}

package chat

import (
	"strconv"
	"strings"

	"github.com/crowdbracket/crowdbracket/internal/domain"
)

type EventType string

const (
	EventVote      EventType = "vote"
	EventSuperVote EventType = "super_vote"
	EventModerator EventType = "moderator"
)

type ModeratorOp string

const (
	OpAdd    ModeratorOp = "add"
	OpRemove ModeratorOp = "remove"
	OpSet    ModeratorOp = "set"
)

// Event is a classified chat message. Amount is the add/remove delta or
// the set target for moderator commands.
type Event struct {
	Type   EventType
	User   string
	Side   domain.Side
	Op     ModeratorOp
	Amount int
}

// Standard-vote synonym sets. Matching is exact on the sanitized message,
// never substring.
var (
	side1Tokens = map[string]struct{}{
		"1": {}, "one": {}, "vote1": {}, "first": {},
	}
	side2Tokens = map[string]struct{}{
		"2": {}, "two": {}, "vote2": {}, "second": {},
	}
)

// sanitize strips everything that is not a letter or digit and lowercases
// the rest, so "Super 1!" and "super1" classify identically.
func sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}

// Parse classifies a chat message. The operator identity alone may issue
// moderator commands. The second return is false for noise, which is
// dropped without error.
func Parse(user, text, operator string) (Event, bool) {
	if operator != "" && user == operator {
		if ev, ok := parseModeratorCommand(user, text); ok {
			return ev, true
		}
	}

	switch msg := sanitize(text); {
	case msg == "super1":
		return Event{Type: EventSuperVote, User: user, Side: domain.Side1}, true
	case msg == "super2":
		return Event{Type: EventSuperVote, User: user, Side: domain.Side2}, true
	default:
		if _, ok := side1Tokens[msg]; ok {
			return Event{Type: EventVote, User: user, Side: domain.Side1}, true
		}
		if _, ok := side2Tokens[msg]; ok {
			return Event{Type: EventVote, User: user, Side: domain.Side2}, true
		}
	}
	return Event{}, false
}

// parseModeratorCommand matches the three operator templates:
//
//	add|remove [vote] {1|2} {amount}
//	set [vote] {1|2} {target}
//
// Tokens are sanitized individually rather than as a whole message, so a
// prefixed form like "..set vote 1 10" still parses.
func parseModeratorCommand(user, text string) (Event, bool) {
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := sanitize(f); t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) < 3 {
		return Event{}, false
	}

	var op ModeratorOp
	switch tokens[0] {
	case "add":
		op = OpAdd
	case "remove":
		op = OpRemove
	case "set":
		op = OpSet
	default:
		return Event{}, false
	}
	tokens = tokens[1:]

	// Optional "vote" noise word between the verb and the side.
	if tokens[0] == "vote" {
		tokens = tokens[1:]
	}
	if len(tokens) != 2 {
		return Event{}, false
	}

	var side domain.Side
	switch tokens[0] {
	case "1":
		side = domain.Side1
	case "2":
		side = domain.Side2
	default:
		return Event{}, false
	}

	amount, err := strconv.Atoi(tokens[1])
	if err != nil || amount < 0 {
		return Event{}, false
	}

	return Event{Type: EventModerator, User: user, Side: side, Op: op, Amount: amount}, true
}

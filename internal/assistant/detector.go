package assistant

import (
	"strings"

	"grocer-cli/internal/gateway"
)

// Detector decides whether an assistant reply changed the list.
type Detector interface {
	Mutated(reply gateway.ChatReply) bool
}

// DefaultKeywords are matched case-insensitively against reply text.
var DefaultKeywords = []string{"list updated", "added", "removed", "deleted", "updated", "ticked"}

// KeywordDetector is a best-effort substring scan of the reply text. It has
// false positives ("nothing was added") and false negatives by nature.
type KeywordDetector struct {
	Keywords []string
}

func (d KeywordDetector) Mutated(reply gateway.ChatReply) bool {
	kws := d.Keywords
	if len(kws) == 0 {
		kws = DefaultKeywords
	}
	text := strings.ToLower(reply.Message.Content)
	for _, kw := range kws {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// StructuredDetector trusts the reply's mutated flag and only falls back to
// Fallback (keywords when nil) for backends that do not send it.
type StructuredDetector struct {
	Fallback Detector
}

func (d StructuredDetector) Mutated(reply gateway.ChatReply) bool {
	if reply.Mutated != nil {
		return *reply.Mutated
	}
	if d.Fallback != nil {
		return d.Fallback.Mutated(reply)
	}
	return KeywordDetector{}.Mutated(reply)
}

// Package topic names event channels as "resource-type:resource-id".
package topic

import (
	"strings"

	"PPKitchen/tools/errs"
)

// Resource types the platform publishes events for.
const (
	Session      = "session"
	Collection   = "collection"
	ShoppingList = "shopping_list"
	MealPlan     = "meal_plan"
	Challenge    = "challenge"
	User         = "user"
)

const maxLen = 256

// Topic is a parsed topic string.
type Topic struct {
	Resource string
	ID       string
}

func (t Topic) String() string { return t.Resource + ":" + t.ID }

// Parse splits raw into resource type and id. When raw carries no namespace and
// defaultNamespace is set, raw is read as an id in that namespace.
func Parse(raw, defaultNamespace string) (Topic, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxLen {
		return Topic{}, errs.ErrInvalidTopic.WrapMsg("bad length", "topic", raw)
	}
	resource, id, found := strings.Cut(raw, ":")
	if !found {
		if defaultNamespace == "" {
			return Topic{}, errs.ErrInvalidTopic.WrapMsg("missing namespace", "topic", raw)
		}
		resource, id = defaultNamespace, raw
	}
	if resource == "" || id == "" || strings.ContainsAny(id, " \t\r\n") || !validResource(resource) {
		return Topic{}, errs.ErrInvalidTopic.WrapMsg("malformed", "topic", raw)
	}
	return Topic{Resource: resource, ID: id}, nil
}

func validResource(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && r != '_' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

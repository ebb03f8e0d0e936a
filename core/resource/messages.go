package resource

import (
	"strings"
	"unicode"
)

// Messages are the notification texts of the standard operations.
type Messages struct {
	ListSuccess   string
	ListError     string
	CreateSuccess string
	CreateError   string
	UpdateSuccess string
	UpdateError   string
	DeleteSuccess string
	DeleteError   string
}

// DefaultMessages builds the messages of a resource out of its display names, eg. ("Class", "Classes").
func DefaultMessages(label, plural string) Messages {
	lPlural := strings.ToLower(plural)
	lLabel := strings.ToLower(label)
	return Messages{
		ListSuccess:   capitalize(plural) + " loaded successfully",
		ListError:     "Failed to load " + lPlural,
		CreateSuccess: capitalize(label) + " created successfully",
		CreateError:   "Failed to create " + lLabel,
		UpdateSuccess: capitalize(label) + " updated successfully",
		UpdateError:   "Failed to update " + lLabel,
		DeleteSuccess: capitalize(label) + " deleted successfully",
		DeleteError:   "Failed to delete " + lLabel,
	}
}

// merge overrides m with the non-empty messages of o.
func (m Messages) merge(o Messages) Messages {
	pick := func(dflt, ovrd string) string {
		if ovrd != "" {
			return ovrd
		}
		return dflt
	}
	return Messages{
		ListSuccess:   pick(m.ListSuccess, o.ListSuccess),
		ListError:     pick(m.ListError, o.ListError),
		CreateSuccess: pick(m.CreateSuccess, o.CreateSuccess),
		CreateError:   pick(m.CreateError, o.CreateError),
		UpdateSuccess: pick(m.UpdateSuccess, o.UpdateSuccess),
		UpdateError:   pick(m.UpdateError, o.UpdateError),
		DeleteSuccess: pick(m.DeleteSuccess, o.DeleteSuccess),
		DeleteError:   pick(m.DeleteError, o.DeleteError),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// words spells a camelCase name out in lower case, eg. "monthlyStats" -> "monthly stats".
func words(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte(' ')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

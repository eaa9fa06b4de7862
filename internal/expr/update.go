package expr

import "fmt"

// Section is a clause of an update expression.
type Section uint8

// Update sections, in render order.
const (
	SectionSet Section = iota
	SectionRemove
	SectionAdd
	SectionDelete
)

var sectionKeywords = [...]string{
	SectionSet:    "SET",
	SectionRemove: "REMOVE",
	SectionAdd:    "ADD",
	SectionDelete: "DELETE",
}

func (s Section) String() string {
	if int(s) < len(sectionKeywords) {
		return sectionKeywords[s]
	}
	return fmt.Sprintf("Section(%d)", s)
}

// Action is one comma-separated entry of an update section.
type Action struct {
	Section Section
	Tokens  Tokens
}

// Assign renders "SET k = :k".
func Assign(key string, v any) Action {
	return Action{SectionSet, Tokens{Name(key), Literal(" = "), Value(key, v)}}
}

// AssignIfNotExists renders "SET k = if_not_exists(k, :k)".
func AssignIfNotExists(key string, v any) Action {
	return Action{SectionSet, Tokens{
		Name(key), Literal(" = if_not_exists("), Name(key), Literal(", "), Value(key, v), Literal(")"),
	}}
}

// AppendList renders "SET k = list_append(k, :k)".
func AppendList(key string, v any) Action {
	return Action{SectionSet, Tokens{
		Name(key), Literal(" = list_append("), Name(key), Literal(", "), Value(key, v), Literal(")"),
	}}
}

// PrependList renders "SET k = list_append(:k, k)".
func PrependList(key string, v any) Action {
	return Action{SectionSet, Tokens{
		Name(key), Literal(" = list_append("), Value(key, v), Literal(", "), Name(key), Literal(")"),
	}}
}

// Increment renders "SET k = k + :k".
func Increment(key string, v any) Action {
	return Action{SectionSet, Tokens{Name(key), Literal(" = "), Name(key), Literal(" + "), Value(key, v)}}
}

// Decrement renders "SET k = k - :k".
func Decrement(key string, v any) Action {
	return Action{SectionSet, Tokens{Name(key), Literal(" = "), Name(key), Literal(" - "), Value(key, v)}}
}

// SetIndex renders "SET k[i] = :k_i".
func SetIndex(key string, index int, v any) Action {
	return Assign(fmt.Sprintf("%s[%d]", key, index), v)
}

// AddValue renders "ADD k :k". It increments numbers and unions sets.
func AddValue(key string, v any) Action {
	return Action{SectionAdd, Tokens{Name(key), Literal(" "), Value(key, v)}}
}

// DeleteValue renders "DELETE k :k". It removes elements from a set.
func DeleteValue(key string, v any) Action {
	return Action{SectionDelete, Tokens{Name(key), Literal(" "), Value(key, v)}}
}

// RemovePath renders "REMOVE k".
func RemovePath(key string) Action {
	return Action{SectionRemove, Tokens{Name(key)}}
}

// RemoveIndex renders "REMOVE k[i]".
func RemoveIndex(key string, index int) Action {
	return RemovePath(fmt.Sprintf("%s[%d]", key, index))
}

// UpdateTokens groups actions by section and joins them into a single update
// expression. Sections always render as SET, REMOVE, ADD, DELETE regardless of
// the order actions were added in; within a section insertion order is kept.
func UpdateTokens(actions []Action) Tokens {
	var grouped [len(sectionKeywords)][]Action
	for _, a := range actions {
		if int(a.Section) >= len(grouped) {
			continue
		}
		grouped[a.Section] = append(grouped[a.Section], a)
	}

	var out Tokens
	for section, group := range grouped {
		if len(group) == 0 {
			continue
		}
		if len(out) > 0 {
			out = append(out, Literal(" "))
		}
		out = append(out, Literal(sectionKeywords[section]+" "))
		for i, a := range group {
			if i > 0 {
				out = append(out, Literal(", "))
			}
			out = append(out, a.Tokens...)
		}
	}
	return out
}

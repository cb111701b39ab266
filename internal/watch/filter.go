package watch

import "manawatch/internal/portal"

// FilterNew walks notices in document order (newest first) and returns
// the entries strictly before the first one whose title equals cursor.
//
// An empty cursor, or one matching no entry, means everything is new.
// That is deliberate: an unrecognized cursor is "no history", not an
// error.
func FilterNew(notices []portal.Notice, cursor string) []portal.Notice {
	if cursor == "" {
		return notices
	}
	for i, n := range notices {
		if n.Title == cursor {
			return notices[:i:i]
		}
	}
	return notices
}

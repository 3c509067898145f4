// Package optfile builds the license tool's option-file contents: the
// fixed preamble plus an optional deny-group block, per spec §4.5/§6.
package optfile

import (
	"strings"
)

// Preamble is the fixed text every option file begins with.
const Preamble = "GROUP DOORSUSER SBX\nEXCLUDE DOORS GROUP DOORSUSER\n"

// DefaultDenyGroupName is used by GenerateDenyGroup when groupName is empty.
const DefaultDenyGroupName = "GROUP_DOORS_EXCLUDE"

// Body assembles the full option-file contents: the fixed preamble
// followed by content, if any.
func Body(content string) string {
	if content == "" {
		return Preamble
	}
	return Preamble + content
}

// GenerateDenyGroup builds the three-line deny-group block excluding the
// given (case-insensitive) uids from the feature, or the empty string if
// userList is empty. groupName defaults to DefaultDenyGroupName.
func GenerateDenyGroup(userList []string, groupName string) string {
	if len(userList) == 0 {
		return ""
	}
	if groupName == "" {
		groupName = DefaultDenyGroupName
	}

	upper := make([]string, len(userList))
	for i, u := range userList {
		upper[i] = strings.ToUpper(u)
	}

	var b strings.Builder
	b.WriteString("GROUPCASEINSENSITIVE ON\n")
	b.WriteString("GROUP " + groupName + " " + strings.Join(upper, " ") + "\n")
	b.WriteString("EXCLUDE DOORS GROUP " + groupName + "\n")
	return b.String()
}

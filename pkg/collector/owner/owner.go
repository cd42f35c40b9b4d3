package owner

import (
	"os/user"
	"strconv"
)

// Unknown is shown when a process owner cannot be resolved.
const Unknown = "Unknown"

// lookupUser allows tests to stub the uid to account name mapping.
var lookupUser = user.LookupId

// nameForUID maps a numeric uid to its account name.
func nameForUID(uid uint64) (string, bool) {
	u, err := lookupUser(strconv.FormatUint(uid, 10))
	if err != nil || u.Username == "" {
		return "", false
	}
	return u.Username, true
}

// OrUnknown substitutes the placeholder for an unresolved owner.
func OrUnknown(name string, ok bool) string {
	if !ok || name == "" {
		return Unknown
	}
	return name
}

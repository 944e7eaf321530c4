package redis

import "fmt"

// usersKey returns the key of the HASH mapping username -> user JSON
func usersKey(prefix string) string {
	return fmt.Sprintf("%s:users", prefix)
}

// matchesKey returns the key of the LIST of match JSON in append order
func matchesKey(prefix string) string {
	return fmt.Sprintf("%s:matches", prefix)
}

// sequenceKey returns the key of the counter holding the last sequence issued
func sequenceKey(prefix string) string {
	return fmt.Sprintf("%s:sequence", prefix)
}

package rediskey

import "fmt"

// Loyalty keys (global convention across services)
const (
	MirrorPrefix   = "loyalty:mirror"
	IncidentSeq    = "seq:incident"
	TierChangedKey = "loyalty:tier_changed"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildMirrorKey returns "loyalty:mirror:{principalID}"
func BuildMirrorKey(principalID string) string {
	return NamespaceKey(MirrorPrefix, principalID)
}

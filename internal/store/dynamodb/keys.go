package dynamodb

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Single-table key layout. Every item carries a PK/SK pair; entity records
// store their payload as a JSON blob under the "data" attribute.
//
//	DEPLOY#<name>   / CONFIG          deployment configuration
//	STATE#<name>    / CURRENT         current shift state (+ "version" attr)
//	HISTORY#<name>  / <ulid>          append-only weight/phase trail
//	EVENT#<name>    / <ulid>          append-only audit events
//	LOCK#<key>      / LOCK            controller lock (+ "ttl" attr)
const (
	deployPrefix  = "DEPLOY#"
	statePrefix   = "STATE#"
	historyPrefix = "HISTORY#"
	eventPrefix   = "EVENT#"
	lockPrefix    = "LOCK#"

	configSK  = "CONFIG"
	currentSK = "CURRENT"
	lockSK    = "LOCK"
)

func deployPK(name string) string  { return deployPrefix + name }
func statePK(name string) string   { return statePrefix + name }
func historyPK(name string) string { return historyPrefix + name }
func eventPK(name string) string   { return eventPrefix + name }
func lockPK(key string) string     { return lockPrefix + key }

// newSortID returns a lexically sortable unique sort key so appended records
// query back in insertion order.
func newSortID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at.UTC()), rand.Reader).String()
}

// ttlEpoch converts a retention duration into a DynamoDB TTL epoch value.
func ttlEpoch(now time.Time, retention time.Duration) int64 {
	return now.Add(retention).Unix()
}

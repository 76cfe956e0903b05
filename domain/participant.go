// Package domain contains core concepts of the direct messaging system.
// This file defines Participant entities and the participant-set rules.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const participantKeySeparator = ","

// Participant binds one user to one conversation.
type Participant struct {
	ConversationID ConversationID `json:"conversationId"`
	UserID         UserID         `json:"userId"`
}

// ParticipantSet returns targets plus the requester, de-duplicated and sorted.
func ParticipantSet(requester UserID, targets []UserID) []UserID {
	set := lo.Uniq(append(append([]UserID{}, targets...), requester))
	set = lo.Filter(set, func(id UserID, _ int) bool { return id != "" })
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set
}

// ParticipantKey is the canonical form of a participant set.
// Two sets are equal if and only if their keys are equal.
// Ids are opaque and may contain the separator, so each one is length prefixed.
func ParticipantKey(set []UserID) string {
	ids := lo.Uniq(lo.Map(set, func(id UserID, _ int) string { return string(id) }))
	sort.Strings(ids)
	return strings.Join(lo.Map(ids, func(id string, _ int) string { return LengthPrefixed(id) }), participantKeySeparator)
}

// LengthPrefixed renders "<len>:<s>", safe to concatenate whatever s contains.
func LengthPrefixed(s string) string {
	return strconv.Itoa(len(s)) + ":" + s
}

// SameParticipants reports exact set equality.
func SameParticipants(a, b []UserID) bool {
	return ParticipantKey(a) == ParticipantKey(b)
}

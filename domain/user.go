package domain

type UserID string

// User is owned by the identity provider and read-only here.
type User struct {
	ID    UserID `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

const channelPrefix = "user-"

// ChannelName is the private channel of a user.
func ChannelName(id UserID) string {
	return channelPrefix + string(id)
}

// UserFromChannel is the inverse of ChannelName.
func UserFromChannel(channel string) (UserID, bool) {
	if len(channel) <= len(channelPrefix) || channel[:len(channelPrefix)] != channelPrefix {
		return "", false
	}
	return UserID(channel[len(channelPrefix):]), true
}

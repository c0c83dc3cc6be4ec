package gofaye

import "strings"

// Channel names a Bayeux channel, a slash separated path such as
// /meta/connect or /chat/room. Subscription patterns are Channels too and
// may end in a * or ** segment.
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels
type Channel string

// Meta channels the session sends requests on
const (
	MetaHandshake   Channel = "/meta/handshake"
	MetaConnect     Channel = "/meta/connect"
	MetaDisconnect  Channel = "/meta/disconnect"
	MetaSubscribe   Channel = "/meta/subscribe"
	MetaUnsubscribe Channel = "/meta/unsubscribe"
	emptyChannel    Channel = ""
)

// ChannelType classifies a Channel by its first segment
type ChannelType string

const (
	// MetaChannel is any channel under /meta/
	MetaChannel ChannelType = "meta"
	// ServiceChannel is any channel under /service/
	ServiceChannel ChannelType = "service"
	// BroadcastChannel is everything else
	BroadcastChannel ChannelType = "broadcast"
)

const (
	metaPrefix    string = "/meta/"
	servicePrefix string = "/service/"

	singleWildcard = "*"
	multiWildcard  = "**"
)

// Type classifies c, ignoring case
func (c Channel) Type() ChannelType {
	s := strings.ToLower(string(c))
	switch {
	case strings.HasPrefix(s, metaPrefix):
		return MetaChannel
	case strings.HasPrefix(s, servicePrefix):
		return ServiceChannel
	default:
		return BroadcastChannel
	}
}

// HasWildcard reports whether the last segment of c is * or ** and no
// earlier segment contains a wildcard
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels_wild
func (c Channel) HasWildcard() bool {
	s := string(c)
	index := strings.LastIndexByte(s, '/')
	last := s[index+1:]
	if last != singleWildcard && last != multiWildcard {
		return false
	}
	return !strings.Contains(s[:index+1], singleWildcard)
}

// IsValid reports whether c is absolute and uses wildcards only in its
// last segment
func (c Channel) IsValid() bool {
	s := string(c)
	if !strings.HasPrefix(s, "/") {
		return false
	}
	return !strings.Contains(s, singleWildcard) || c.HasWildcard()
}

// Segments splits the Channel on "/" and drops empty segments. The result
// is lower-cased and is what inbound routing uses to classify a message.
func (c Channel) Segments() []string {
	parts := strings.Split(strings.ToLower(string(c)), "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// Match checks if a given Channel matches this Channel when this Channel is
// used as a subscription pattern.
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels_wild
func (c Channel) Match(other Channel) bool {
	return Matches(string(c), string(other))
}

// MatchString checks if a given string matches this Channel when this
// Channel is used as a subscription pattern.
func (c Channel) MatchString(other string) bool {
	return Matches(string(c), other)
}

// Matches reports whether the subscription pattern matches channel. Both
// are split on "/" and compared segment by segment: "*" matches exactly one
// segment, "**" matches whatever remains of channel, and any other segment
// must be equal. Without "**" both must have the same number of segments.
func Matches(pattern, channel string) bool {
	patternParts := strings.Split(pattern, "/")
	channelParts := strings.Split(channel, "/")
	if len(channelParts) < len(patternParts) {
		return false
	}

	for i, part := range patternParts {
		if part == multiWildcard {
			return true
		}
		if part != singleWildcard && part != channelParts[i] {
			return false
		}
	}
	return len(channelParts) == len(patternParts)
}

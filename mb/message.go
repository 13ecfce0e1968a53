package mb

import (
	"strconv"
	"strings"

	testtransport "github.com/nrfta/go-testtransport"
)

const (
	HeaderMessageType = "Message-Type"
	HeaderMessageID   = "Message-Id"
	HeaderRetryCount  = "Retry-Count"
)

// SubjectFunc chooses the subject or topic an envelope is published to.
type SubjectFunc func(env testtransport.Envelope) string

// PrefixedSubject publishes to "<prefix>.<message name>".
func PrefixedSubject(prefix string) SubjectFunc {
	return func(env testtransport.Envelope) string {
		name := testtransport.MessageName(env)
		if prefix == "" {
			return name
		}
		return strings.TrimSuffix(prefix, ".") + "." + name
	}
}

// Header is a single broker header.
type Header struct {
	Key   string
	Value string
}

// Headers returns the broker headers describing env, always in the same
// order: message type, message id, retry count.
func Headers(env testtransport.Envelope) []Header {
	res := []Header{
		{Key: HeaderMessageType, Value: testtransport.MessageName(env)},
	}

	if id, ok := env.ID(); ok {
		res = append(res, Header{Key: HeaderMessageID, Value: id.String()})
	}
	if s, ok := testtransport.Last[testtransport.RedeliveryStamp](env); ok {
		res = append(res, Header{Key: HeaderRetryCount, Value: strconv.Itoa(s.RetryCount)})
	}

	return res
}

package testtransport

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Scheme is the DSN scheme reserved for test transports.
const Scheme = "test"

const (
	OptionIntercept         = "intercept"
	OptionCatchExceptions   = "catch_exceptions"
	OptionTestSerialization = "test_serialization"
	OptionDisableRetries    = "disable_retries"
	OptionSupportDelayStamp = "support_delay_stamp"

	// OptionTransportName selects the queue identity. It is not a behavior
	// flag and the resolver ignores it.
	OptionTransportName = "transport_name"
)

// Options is the resolved configuration of a transport. Every field always
// has a concrete value.
type Options struct {
	Intercept         bool
	CatchExceptions   bool
	TestSerialization bool
	DisableRetries    bool
	SupportDelayStamp bool
}

// DefaultOptions returns the values used when neither the options map nor
// the DSN set a flag.
func DefaultOptions() Options {
	return Options{
		Intercept:         true,
		CatchExceptions:   true,
		TestSerialization: true,
		DisableRetries:    true,
		SupportDelayStamp: false,
	}
}

// Map returns the options keyed by their option name.
func (o Options) Map() map[string]bool {
	return map[string]bool{
		OptionIntercept:         o.Intercept,
		OptionCatchExceptions:   o.CatchExceptions,
		OptionTestSerialization: o.TestSerialization,
		OptionDisableRetries:    o.DisableRetries,
		OptionSupportDelayStamp: o.SupportDelayStamp,
	}
}

func (o *Options) field(key string) *bool {
	switch key {
	case OptionIntercept:
		return &o.Intercept
	case OptionCatchExceptions:
		return &o.CatchExceptions
	case OptionTestSerialization:
		return &o.TestSerialization
	case OptionDisableRetries:
		return &o.DisableRetries
	case OptionSupportDelayStamp:
		return &o.SupportDelayStamp
	}

	return nil
}

var optionKeys = []string{
	OptionIntercept,
	OptionCatchExceptions,
	OptionTestSerialization,
	OptionDisableRetries,
	OptionSupportDelayStamp,
}

// ResolveOptions builds the transport configuration from a DSN and an
// options map. For each flag the options map wins, then the DSN query, then
// the default. Unknown keys in either source are ignored.
func ResolveOptions(dsn string, options map[string]any) (Options, error) {
	query, err := parseDSN(dsn)
	if err != nil {
		return Options{}, err
	}

	res := DefaultOptions()
	for _, key := range optionKeys {
		field := res.field(key)

		if raw, ok := options[key]; ok {
			v, err := parseOptionValue(raw)
			if err != nil {
				return Options{}, fmt.Errorf("%w: %s: %v", ErrInvalidOption, key, err)
			}
			*field = v
			continue
		}

		if values, ok := query[key]; ok {
			v, err := parseOptionValue(values[len(values)-1])
			if err != nil {
				return Options{}, fmt.Errorf("%w: dsn parameter %s: %v", ErrInvalidOption, key, err)
			}
			*field = v
		}
	}

	return res, nil
}

// SchemeOf returns the scheme of dsn, or an empty string when dsn has no
// "<scheme>://" prefix.
func SchemeOf(dsn string) string {
	scheme, _, ok := strings.Cut(dsn, "://")
	if !ok {
		return ""
	}

	return scheme
}

func parseDSN(dsn string) (url.Values, error) {
	if SchemeOf(dsn) == "" {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrInvalidDSN, dsn)
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}

	return query, nil
}

func parseOptionValue(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%q is not a boolean", v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("unsupported type %T", raw)
	}
}

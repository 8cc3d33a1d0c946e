package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

type RateType string

const (
	RateTypePrepaid     RateType = "prepaid"
	RateTypePrepaidCont RateType = "prepaid_cont"
	RateTypePostpaid    RateType = "postpaid"
	RateTypeFree        RateType = "free"
)

func ParseRateType(s string) (RateType, error) {
	switch t := RateType(strings.ToLower(strings.TrimSpace(s))); t {
	case RateTypePrepaid, RateTypePrepaidCont, RateTypePostpaid, RateTypeFree:
		return t, nil
	}
	return "", fmt.Errorf("%w: rate type %q", ErrConfiguration, s)
}

// ChargesInAdvance reports whether the quota fee is due at the start of a period.
func (t RateType) ChargesInAdvance() bool {
	return t == RateTypePrepaid || t == RateTypePrepaidCont
}

func (t RateType) Value() (driver.Value, error) { return enumValue(ParseRateType, string(t)) }

func (t *RateType) Scan(value any) error { return enumScan(ParseRateType, value, t) }

type DestinationType string

const (
	DestinationNormal    DestinationType = "normal"
	DestinationNoQuota   DestinationType = "noquota"
	DestinationOnlyQuota DestinationType = "onlyquota"
	DestinationReject    DestinationType = "reject"
)

func ParseDestinationType(s string) (DestinationType, error) {
	switch t := DestinationType(strings.ToLower(strings.TrimSpace(s))); t {
	case DestinationNormal, DestinationNoQuota, DestinationOnlyQuota, DestinationReject:
		return t, nil
	}
	return "", fmt.Errorf("%w: destination type %q", ErrConfiguration, s)
}

func (t DestinationType) Value() (driver.Value, error) {
	return enumValue(ParseDestinationType, string(t))
}

func (t *DestinationType) Scan(value any) error { return enumScan(ParseDestinationType, value, t) }

type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchPrefix MatchType = "prefix"
	MatchSuffix MatchType = "suffix"
	MatchRegex  MatchType = "regex"
)

func ParseMatchType(s string) (MatchType, error) {
	switch t := MatchType(strings.ToLower(strings.TrimSpace(s))); t {
	case MatchExact, MatchPrefix, MatchSuffix, MatchRegex:
		return t, nil
	}
	return "", fmt.Errorf("%w: match type %q", ErrConfiguration, s)
}

func (t MatchType) Value() (driver.Value, error) { return enumValue(ParseMatchType, string(t)) }

func (t *MatchType) Scan(value any) error { return enumScan(ParseMatchType, value, t) }

func enumValue[T ~string](parse func(string) (T, error), raw string) (driver.Value, error) {
	v, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return string(v), nil
}

func enumScan[T ~string](parse func(string) (T, error), value any, dst *T) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("%w: unsupported enum value %T", ErrConfiguration, value)
	}
	parsed, err := parse(raw)
	if err != nil {
		return err
	}
	*dst = parsed
	return nil
}

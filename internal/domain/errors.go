package domain

import "errors"

// Admission rejections. None of these are surfaced to the chat author.
var (
	ErrEmptyComment       = errors.New("comment is empty")
	ErrMissingPrefix      = errors.New("comment does not start with the required prefix")
	ErrAudienceFiltered   = errors.New("author does not match the audience filter")
	ErrCapacityExceeded   = errors.New("comment queues are at capacity")
	ErrCooldownActive     = errors.New("author is on cooldown")
	ErrEmptyAfterSanitize = errors.New("comment is empty after sanitization")
)

var (
	ErrCommentNotFound     = errors.New("comment not found")
	ErrInvalidSetting      = errors.New("invalid setting")
	ErrRoleAlreadyDeclared = errors.New("observer role already declared")
	ErrUnknownRole         = errors.New("unknown observer role")
)

// Upstream session errors.
var (
	ErrUpstreamUnavailable = errors.New("upstream live feed unavailable")
	ErrSessionBound        = errors.New("a different live identity is already bound")
	ErrSessionNotBound     = errors.New("no live identity is bound")
	ErrInvalidIdentity     = errors.New("invalid live identity")
)

// RejectReason maps an admission error to a short label for metrics and logs.
func RejectReason(err error) string {
	switch {
	case err == nil:
		return "admitted"
	case errors.Is(err, ErrEmptyComment):
		return "empty"
	case errors.Is(err, ErrMissingPrefix):
		return "missing_prefix"
	case errors.Is(err, ErrAudienceFiltered):
		return "audience"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, ErrCooldownActive):
		return "cooldown"
	case errors.Is(err, ErrEmptyAfterSanitize):
		return "sanitized_empty"
	default:
		return "unknown"
	}
}

package utils

import "strconv"

const pageSizeDefault = 20
const pageSizeMax = 100

// Page is a list response with its paging window.
type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
}

// GetPaginationParams calculates the offset and limit for pagination based on the provided values.
// If offset or limit are nil, default values are used. The limit is capped at a maximum value.
func GetPaginationParams(offset *int, limit *int) (int, int) {
	finalOffset := 0
	finalLimit := pageSizeDefault

	if offset != nil && *offset >= 0 {
		finalOffset = *offset
	}

	if limit != nil && *limit > 0 {
		finalLimit = min(*limit, pageSizeMax)
	}

	return finalOffset, finalLimit
}

// ParsePaginationQuery reads offset and limit query values. Missing or
// malformed values fall back to the defaults.
func ParsePaginationQuery(offset, limit string) (int, int) {
	return GetPaginationParams(parseOptionalInt(offset), parseOptionalInt(limit))
}

func parseOptionalInt(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

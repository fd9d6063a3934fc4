package httputil

import (
	"errors"
	"net/http"
	"strconv"
)

// ParsePagination reads limit and offset query parameters.
// A limit above maxLimit is clamped.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) (limit, offset int, err error) {
	limit = defaultLimit

	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		if parsed > maxLimit {
			parsed = maxLimit
		}
		limit = parsed
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		parsed, err := strconv.Atoi(o)
		if err != nil || parsed < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
		offset = parsed
	}

	return limit, offset, nil
}

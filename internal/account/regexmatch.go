package account

import (
	"regexp"
	"sync"
)

// routeMatchCache memoizes compiled route-matching regexes: routing rules
// and limit keys are reused across many requests, so compiling on every
// call would be wasteful.
var routeMatchCache sync.Map // string -> *regexp.Regexp

// matchRoute reports whether path satisfies route the way the original
// Python `re.match(route, path, re.I)` does: case-insensitive, matched
// from the start of path but not required to consume all of it. The
// literal route "*" always matches.
func matchRoute(route, path string) bool {
	if route == "*" {
		return true
	}
	re, err := compiledRoute(route)
	if err != nil {
		return false
	}
	loc := re.FindStringIndex(path)
	return loc != nil && loc[0] == 0
}

func compiledRoute(route string) (*regexp.Regexp, error) {
	if v, ok := routeMatchCache.Load(route); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("(?i)" + route)
	if err != nil {
		return nil, err
	}
	routeMatchCache.Store(route, re)
	return re, nil
}

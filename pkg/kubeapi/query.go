package kubeapi

import (
	"net/url"
	"strings"
)

// orderedQuery collects query parameters in insertion order and renders them
// without re-sorting keys, unlike url.Values.Encode (which always sorts
// alphabetically). Spec's §4.C ordering rule — read-options first,
// list-options second, special flags last — is only observable in the raw
// query string, so it has to be built by hand.
type orderedQuery struct {
	keys []string
	vals map[string]string
}

func newOrderedQuery() *orderedQuery {
	return &orderedQuery{vals: map[string]string{}}
}

// set adds key=value, or overwrites the value if key was already set
// (keeping its original position).
func (q *orderedQuery) set(key, value string) {
	if _, ok := q.vals[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.vals[key] = value
}

func (q *orderedQuery) empty() bool {
	return len(q.keys) == 0
}

// encode renders the query string with application/x-www-form-urlencoded
// percent-encoding (RFC 3986), in insertion order.
func (q *orderedQuery) encode() string {
	var b strings.Builder
	for i, k := range q.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(q.vals[k]))
	}
	return b.String()
}

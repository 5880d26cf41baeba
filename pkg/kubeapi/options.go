package kubeapi

import "strconv"

// ReadOptions configures a single-resource read (Get; GetStatus and GetScale
// take no read options).
// Export and Exact mirror the deprecated server-side flags of the same name.
type ReadOptions struct {
	Pretty *bool
	Export *bool
	Exact  *bool
}

type ReadOption func(*ReadOptions)

func WithPretty(v bool) ReadOption    { return func(o *ReadOptions) { o.Pretty = &v } }
func WithExport(v bool) ReadOption    { return func(o *ReadOptions) { o.Export = &v } }
func WithExactMatch(v bool) ReadOption { return func(o *ReadOptions) { o.Exact = &v } }

func buildReadOptions(opts []ReadOption) ReadOptions {
	var ro ReadOptions
	for _, opt := range opts {
		opt(&ro)
	}
	return ro
}

// queryParams appends this ReadOptions' query parameters, in pretty/export/exact
// order (all read-options, so relative order among themselves is stable but
// doesn't matter against spec's coarser read/list/flags ordering rule).
func (ro ReadOptions) queryParams(q *orderedQuery) {
	if ro.Pretty != nil {
		q.set("pretty", strconv.FormatBool(*ro.Pretty))
	}
	if ro.Export != nil {
		q.set("export", strconv.FormatBool(*ro.Export))
	}
	if ro.Exact != nil {
		q.set("exact", strconv.FormatBool(*ro.Exact))
	}
}

// ListOptions configures a collection read (List) or the initial request of
// a Watch.
type ListOptions struct {
	Limit           *int64
	LabelSelector   []Requirement
	FieldSelector   []Requirement
	ResourceVersion string
	TimeoutSeconds  *int64
	Pretty          *bool
}

type ListOption func(*ListOptions)

func WithLimit(n int64) ListOption { return func(o *ListOptions) { o.Limit = &n } }

// WithLabelSelector appends requirements to the label selector. Calling it
// more than once, or passing several requirements at once, both merge into
// one comma-joined labelSelector query parameter.
func WithLabelSelector(reqs ...Requirement) ListOption {
	return func(o *ListOptions) { o.LabelSelector = append(o.LabelSelector, reqs...) }
}

func WithFieldSelector(reqs ...Requirement) ListOption {
	return func(o *ListOptions) { o.FieldSelector = append(o.FieldSelector, reqs...) }
}

func WithResourceVersion(rv string) ListOption {
	return func(o *ListOptions) { o.ResourceVersion = rv }
}

func WithTimeoutSeconds(seconds int64) ListOption {
	return func(o *ListOptions) { o.TimeoutSeconds = &seconds }
}

func WithListPretty(v bool) ListOption { return func(o *ListOptions) { o.Pretty = &v } }

func buildListOptions(opts []ListOption) (ListOptions, error) {
	var lo ListOptions
	for _, opt := range opts {
		opt(&lo)
	}
	for _, r := range lo.FieldSelector {
		if err := fieldSelectorAllowed(r); err != nil {
			return lo, err
		}
	}
	return lo, nil
}

// queryParams appends this ListOptions' query parameters in the order the
// API server expects: limit, labelSelector, fieldSelector, resourceVersion,
// timeoutSeconds, pretty.
func (lo ListOptions) queryParams(q *orderedQuery) error {
	if lo.Limit != nil {
		q.set("limit", strconv.FormatInt(*lo.Limit, 10))
	}
	if len(lo.LabelSelector) > 0 {
		s, err := encodeSelector(lo.LabelSelector)
		if err != nil {
			return err
		}
		q.set("labelSelector", s)
	}
	if len(lo.FieldSelector) > 0 {
		s, err := encodeSelector(lo.FieldSelector)
		if err != nil {
			return err
		}
		q.set("fieldSelector", s)
	}
	if lo.ResourceVersion != "" {
		q.set("resourceVersion", lo.ResourceVersion)
	}
	if lo.TimeoutSeconds != nil {
		q.set("timeoutSeconds", strconv.FormatInt(*lo.TimeoutSeconds, 10))
	}
	if lo.Pretty != nil {
		q.set("pretty", strconv.FormatBool(*lo.Pretty))
	}
	return nil
}

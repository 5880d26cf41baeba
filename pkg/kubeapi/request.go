package kubeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Request is the transport-neutral result of building a call: everything
// dispatch.go needs to fire it over net/http.
type Request struct {
	Method  string
	URL     *url.URL
	Headers http.Header
	Body    []byte
}

func (r *Request) toHTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = r.Headers.Clone()
	return req, nil
}

// Builder assembles a Request through the five-step path spec lays out:
// namespace -> verb -> [resource name] -> [sub-resource] -> [options|body]
// -> Build. Each step returns the same *Builder so calls chain; Build
// reports the first invariant violation it finds.
type Builder struct {
	base       *url.URL
	descriptor ResourceDescriptor
	auth       Authentication

	ns          NamespaceSelector
	verb        string
	name        string
	subResource string

	readOpts  []ReadOption
	listOpts  []ListOption
	body      interface{}
	deleteOpt *metav1.DeleteOptions

	watch, follow, previous, timestamps bool
	container                           string

	err error
}

// NewBuilder starts a request against descriptor's collection, rooted at
// base (the client's master URL), authenticating with auth.
func NewBuilder(base *url.URL, descriptor ResourceDescriptor, auth Authentication) *Builder {
	return &Builder{base: base, descriptor: descriptor, auth: auth, ns: AllNamespaces}
}

func (b *Builder) Namespace(ns NamespaceSelector) *Builder {
	b.ns = ns
	return b
}

func (b *Builder) Verb(method string) *Builder {
	b.verb = method
	return b
}

func (b *Builder) ResourceName(name string) *Builder {
	b.name = name
	return b
}

// SubResource targets /status, /scale or /log under the resource name.
func (b *Builder) SubResource(kind string) *Builder {
	b.subResource = kind
	return b
}

func (b *Builder) ReadOptions(opts ...ReadOption) *Builder {
	b.readOpts = append(b.readOpts, opts...)
	return b
}

func (b *Builder) ListOptions(opts ...ListOption) *Builder {
	b.listOpts = append(b.listOpts, opts...)
	return b
}

// Body sets the JSON payload for POST/PUT requests.
func (b *Builder) Body(obj interface{}) *Builder {
	b.body = obj
	return b
}

// DeleteOptionsBody sets the JSON body of a DELETE request, the only body a
// DELETE is allowed to carry.
func (b *Builder) DeleteOptionsBody(opts *metav1.DeleteOptions) *Builder {
	b.deleteOpt = opts
	return b
}

func (b *Builder) Watch(v bool) *Builder {
	b.watch = v
	return b
}

// Follow configures the /log sub-resource's follow=true query. container,
// previous and timestamps are forwarded verbatim when non-zero.
func (b *Builder) Follow(container string, previous, timestamps bool) *Builder {
	b.follow = true
	b.container = container
	b.previous = previous
	b.timestamps = timestamps
	return b
}

// Build validates the accumulated state against spec's invariants and
// renders the final Request.
func (b *Builder) Build() (*Request, error) {
	if b.watch && b.follow {
		return nil, &BadRequestError{Message: "watch and follow are mutually exclusive"}
	}
	if b.subResource == "log" && b.verb != http.MethodGet {
		return nil, &BadRequestError{Message: "log sub-resource only supports GET"}
	}
	switch b.verb {
	case http.MethodPut:
		if b.name == "" {
			return nil, &BadRequestError{Message: "PUT requires a resource name"}
		}
	case http.MethodPost:
		if b.name != "" {
			return nil, &BadRequestError{Message: "POST forbids a resource name in the path"}
		}
		if b.body == nil {
			return nil, &BadRequestError{Message: "POST requires a body"}
		}
		if err := requireObjectName(b.body); err != nil {
			return nil, err
		}
	case http.MethodDelete:
		if b.body != nil {
			return nil, &BadRequestError{Message: "DELETE forbids a body other than DeleteOptions"}
		}
	}

	path := APIPath(b.descriptor.GVR)
	if b.descriptor.Scope == Namespaced {
		if segment, isAll := b.ns.pathSegment(); !isAll {
			path += "/namespaces/" + segment
		}
	}
	path += "/" + b.descriptor.GVR.Resource
	if b.name != "" {
		path += "/" + b.name
	}
	if b.subResource != "" {
		path += "/" + b.subResource
	}

	q := newOrderedQuery()
	readOpts := buildReadOptions(b.readOpts)
	readOpts.queryParams(q)
	if len(b.listOpts) > 0 {
		listOpts, err := buildListOptions(b.listOpts)
		if err != nil {
			return nil, err
		}
		if err := listOpts.queryParams(q); err != nil {
			return nil, err
		}
	}
	if b.watch {
		q.set("watch", "true")
	}
	if b.follow {
		q.set("follow", "true")
	}
	if b.previous {
		q.set("previous", "true")
	}
	if b.timestamps {
		q.set("timestamps", "true")
	}
	if b.container != "" {
		q.set("container", b.container)
	}

	u := *b.base
	u.Path = path
	if !q.empty() {
		u.RawQuery = q.encode()
	}

	headers := http.Header{}
	if auth, ok := b.auth.authorizationHeader(); ok {
		headers.Set("Authorization", auth)
	}

	var bodyBytes []byte
	if b.deleteOpt != nil {
		data, err := json.Marshal(b.deleteOpt)
		if err != nil {
			return nil, &BadRequestError{Message: fmt.Sprintf("marshal delete options: %v", err)}
		}
		bodyBytes = data
		headers.Set("Content-Type", "application/json")
	} else if b.body != nil {
		data, err := json.Marshal(b.body)
		if err != nil {
			return nil, &BadRequestError{Message: fmt.Sprintf("marshal body: %v", err)}
		}
		bodyBytes = data
		headers.Set("Content-Type", "application/json")
	}

	return &Request{Method: b.verb, URL: &u, Headers: headers, Body: bodyBytes}, nil
}

// objectNamer is satisfied by any resource value whose ObjectMeta promotes
// GetName, e.g. a pointer to any type embedding metav1.ObjectMeta.
type objectNamer interface {
	GetName() string
}

func requireObjectName(body interface{}) error {
	named, ok := body.(objectNamer)
	if !ok {
		return nil
	}
	if named.GetName() == "" {
		return &BadRequestError{Message: "metadata.name must be set"}
	}
	return nil
}

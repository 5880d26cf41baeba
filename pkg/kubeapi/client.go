package kubeapi

import (
	"context"
	"net/http"
	"net/url"

	autoscalingv1 "k8s.io/api/autoscaling/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ObjectPtr is the constraint every resource type T must satisfy through
// its pointer: metav1.Object, so Create can validate metadata.name and
// Update can target the right name in the URL. Every k8s.io/api type
// satisfies this already, since ObjectMeta's accessor methods are defined
// on *ObjectMeta and promoted to *T.
type ObjectPtr[T any] interface {
	*T
	metav1.Object
}

// List is the generic collection envelope returned by List, shaped like
// every Kubernetes *List type (TypeMeta, ListMeta, Items).
type List[T any] struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []T `json:"items"`
}

// Client is the generic per-kind client (component E): every CRUD,
// status/scale sub-resource, list and watch/follow operation a resource
// kind supports, implemented once and parameterized by (T, PT).
type Client[T any, PT ObjectPtr[T]] struct {
	dispatcher *Dispatcher
	base       *url.URL
	auth       Authentication
	descriptor ResourceDescriptor
}

// newClientFor builds a generic client for descriptor, dispatching through d
// against base and authenticating with auth. Exposed to callers through
// facade.go's For/Namespaced/ClusterScoped constructors rather than directly,
// so the package's one public "build me a client" entry point stays NewClient
// (config, log) -> *Connection.
func newClientFor[T any, PT ObjectPtr[T]](d *Dispatcher, base *url.URL, auth Authentication, descriptor ResourceDescriptor) *Client[T, PT] {
	return &Client[T, PT]{dispatcher: d, base: base, auth: auth, descriptor: descriptor}
}

func (c *Client[T, PT]) builder() *Builder {
	return NewBuilder(c.base, c.descriptor, c.auth)
}

func (c *Client[T, PT]) Get(ctx context.Context, ns NamespaceSelector, name string, opts ...ReadOption) (T, error) {
	var zero T
	if !c.descriptor.Capabilities.Readable {
		return zero, MethodNotAllowed(http.MethodGet)
	}
	req, err := c.builder().Namespace(ns).Verb(http.MethodGet).ResourceName(name).ReadOptions(opts...).Build()
	if err != nil {
		return zero, err
	}
	return Do[T](ctx, c.dispatcher, req)
}

func (c *Client[T, PT]) List(ctx context.Context, ns NamespaceSelector, opts ...ListOption) (*List[T], error) {
	if !c.descriptor.Capabilities.Listable {
		return nil, MethodNotAllowed(http.MethodGet)
	}
	req, err := c.builder().Namespace(ns).Verb(http.MethodGet).ListOptions(opts...).Build()
	if err != nil {
		return nil, err
	}
	result, err := Do[List[T]](ctx, c.dispatcher, req)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client[T, PT]) Create(ctx context.Context, ns NamespaceSelector, obj *T) (T, error) {
	var zero T
	if !c.descriptor.Capabilities.Creatable {
		return zero, MethodNotAllowed(http.MethodPost)
	}
	req, err := c.builder().Namespace(ns).Verb(http.MethodPost).Body(PT(obj)).Build()
	if err != nil {
		return zero, err
	}
	return Do[T](ctx, c.dispatcher, req)
}

func (c *Client[T, PT]) Update(ctx context.Context, ns NamespaceSelector, obj *T) (T, error) {
	var zero T
	if !c.descriptor.Capabilities.Replaceable {
		return zero, MethodNotAllowed(http.MethodPut)
	}
	name := PT(obj).GetName()
	req, err := c.builder().Namespace(ns).Verb(http.MethodPut).ResourceName(name).Body(PT(obj)).Build()
	if err != nil {
		return zero, err
	}
	return Do[T](ctx, c.dispatcher, req)
}

func (c *Client[T, PT]) Delete(ctx context.Context, ns NamespaceSelector, name string, opts *metav1.DeleteOptions) error {
	if !c.descriptor.Capabilities.Deletable {
		return MethodNotAllowed(http.MethodDelete)
	}
	req, err := c.builder().Namespace(ns).Verb(http.MethodDelete).ResourceName(name).DeleteOptionsBody(opts).Build()
	if err != nil {
		return err
	}
	_, err = Do[metav1.Status](ctx, c.dispatcher, req)
	return err
}

func (c *Client[T, PT]) DeleteAll(ctx context.Context, ns NamespaceSelector, opts *metav1.DeleteOptions) error {
	if !c.descriptor.Capabilities.CollectionDeletable {
		return MethodNotAllowed(http.MethodDelete)
	}
	req, err := c.builder().Namespace(ns).Verb(http.MethodDelete).DeleteOptionsBody(opts).Build()
	if err != nil {
		return err
	}
	_, err = Do[metav1.Status](ctx, c.dispatcher, req)
	return err
}

func (c *Client[T, PT]) GetStatus(ctx context.Context, ns NamespaceSelector, name string) (T, error) {
	var zero T
	if !c.descriptor.Capabilities.HasStatus {
		return zero, MethodNotAllowed(http.MethodGet)
	}
	req, err := c.builder().Namespace(ns).Verb(http.MethodGet).ResourceName(name).SubResource("status").Build()
	if err != nil {
		return zero, err
	}
	return Do[T](ctx, c.dispatcher, req)
}

func (c *Client[T, PT]) UpdateStatus(ctx context.Context, ns NamespaceSelector, obj *T) (T, error) {
	var zero T
	if !c.descriptor.Capabilities.HasStatus {
		return zero, MethodNotAllowed(http.MethodPut)
	}
	name := PT(obj).GetName()
	req, err := c.builder().Namespace(ns).Verb(http.MethodPut).ResourceName(name).SubResource("status").Body(PT(obj)).Build()
	if err != nil {
		return zero, err
	}
	return Do[T](ctx, c.dispatcher, req)
}

func (c *Client[T, PT]) GetScale(ctx context.Context, ns NamespaceSelector, name string) (*autoscalingv1.Scale, error) {
	if !c.descriptor.Capabilities.Scalable {
		return nil, MethodNotAllowed(http.MethodGet)
	}
	req, err := c.builder().Namespace(ns).Verb(http.MethodGet).ResourceName(name).SubResource("scale").Build()
	if err != nil {
		return nil, err
	}
	result, err := Do[autoscalingv1.Scale](ctx, c.dispatcher, req)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client[T, PT]) UpdateScale(ctx context.Context, ns NamespaceSelector, name string, scale *autoscalingv1.Scale) (*autoscalingv1.Scale, error) {
	if !c.descriptor.Capabilities.Scalable {
		return nil, MethodNotAllowed(http.MethodPut)
	}
	req, err := c.builder().Namespace(ns).Verb(http.MethodPut).ResourceName(name).SubResource("scale").Body(scale).Build()
	if err != nil {
		return nil, err
	}
	result, err := Do[autoscalingv1.Scale](ctx, c.dispatcher, req)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Watch opens a long-lived watch task over the collection, filtered by
// opts. The returned task is cold: call Start to begin receiving events.
func (c *Client[T, PT]) Watch(ns NamespaceSelector, strategy RetryStrategy, opts ...ListOption) (*WatchTask[WatchEvent[T]], error) {
	if !c.descriptor.Capabilities.Listable {
		return nil, MethodNotAllowed("WATCH")
	}
	req, err := c.builder().Namespace(ns).Verb(http.MethodGet).ListOptions(opts...).Watch(true).Build()
	if err != nil {
		return nil, err
	}
	return newWatchTask[WatchEvent[T]](c.dispatcher, req, watchTransformer[T](), strategy), nil
}

// Follow opens a long-lived log-tailing task for one pod/container. Only
// meaningful for a Client[corev1.Pod, *corev1.Pod]. The request is always
// well-formed (GET on /log, watch/follow mutually exclusive by
// construction), so unlike Watch this has no error return.
func (c *Client[T, PT]) Follow(ns NamespaceSelector, name, container string, previous, timestamps bool, strategy RetryStrategy) *WatchTask[string] {
	req, err := c.builder().Namespace(ns).Verb(http.MethodGet).ResourceName(name).
		SubResource("log").Follow(container, previous, timestamps).Build()
	if err != nil {
		panic("kubeapi: Follow built an invalid request: " + err.Error())
	}
	return newWatchTask[string](c.dispatcher, req, logLineTransformer(), strategy)
}

// RetryPolicyNeverStrategy is a RetryStrategy that never reconnects; used
// internally and available to callers who want a one-shot watch/follow.
func RetryPolicyNeverStrategy() RetryStrategy {
	return RetryStrategy{Policy: RetryPolicy{Kind: PolicyNever}, Backoff: Backoff{Kind: BackoffNone}}
}

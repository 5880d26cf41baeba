package kubeapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Connection is the resolved, ready-to-use result of NewClient: one shared
// Dispatcher and base URL that every per-kind Client, Namespaced and
// ClusterScoped facade built from it dispatches through.
type Connection struct {
	dispatcher *Dispatcher
	base       *url.URL
	auth       Authentication
}

// NewClient resolves config into a Connection: builds the transport, the
// base URL and the shared Dispatcher. log defaults to logr.Discard().
func NewClient(config *ClientConfig, log logr.Logger) (*Connection, error) {
	base, err := config.BaseURL()
	if err != nil {
		return nil, &InvalidURLError{Err: err}
	}
	timeout := config.Timeout
	dispatcher := NewDispatcher(config.Transport(), timeout, log)
	dispatcher.HTTPClient.CheckRedirect = config.RedirectPolicy.checkRedirect
	auth := config.Authentication
	if auth == nil {
		auth = NoAuth{}
	}
	return &Connection{dispatcher: dispatcher, base: base, auth: auth}, nil
}

// NewClientWithTransport builds a Connection like NewClient, but dispatches
// over an explicit http.RoundTripper instead of the one ClientConfig.Transport
// would build from TLS/proxy settings — the seam tests use to swap in
// httpmock, mirroring the teacher's original NewClient(host, transport).
func NewClientWithTransport(config *ClientConfig, transport http.RoundTripper, log logr.Logger) (*Connection, error) {
	base, err := config.BaseURL()
	if err != nil {
		return nil, &InvalidURLError{Err: err}
	}
	dispatcher := NewDispatcher(transport, config.Timeout, log)
	dispatcher.HTTPClient.CheckRedirect = config.RedirectPolicy.checkRedirect
	auth := config.Authentication
	if auth == nil {
		auth = NoAuth{}
	}
	return &Connection{dispatcher: dispatcher, base: base, auth: auth}, nil
}

// For builds the generic Client[T, PT] for descriptor against this
// connection. Most callers use Namespaced/ClusterScoped instead, which also
// pin the scope-appropriate surface (namespace rebinding, or its absence).
func For[T any, PT ObjectPtr[T]](conn *Connection, descriptor ResourceDescriptor) *Client[T, PT] {
	return newClientFor[T, PT](conn.dispatcher, conn.base, conn.auth, descriptor)
}

// Namespaced pins a Client[T] to one namespace, grounded on the "rebind the
// namespace and return a new lightweight wrapper" idiom rather than passing
// a NamespaceSelector to every call. The facade targets the namespace given
// to NewNamespaced (or to a later Namespace call); it never falls back to
// ClientConfig.Namespace, which a Connection does not keep.
type Namespaced[T any, PT ObjectPtr[T]] struct {
	client *Client[T, PT]
	ns     NamespaceSelector
}

// NewNamespaced builds a facade pinned to ns for descriptor.
func NewNamespaced[T any, PT ObjectPtr[T]](conn *Connection, descriptor ResourceDescriptor, ns NamespaceSelector) Namespaced[T, PT] {
	return Namespaced[T, PT]{client: For[T, PT](conn, descriptor), ns: ns}
}

// Namespace returns a copy of the facade pinned to a different namespace,
// leaving the receiver untouched.
func (n Namespaced[T, PT]) Namespace(ns NamespaceSelector) Namespaced[T, PT] {
	n.ns = ns
	return n
}

func (n Namespaced[T, PT]) Get(ctx context.Context, name string, opts ...ReadOption) (T, error) {
	return n.client.Get(ctx, n.ns, name, opts...)
}

func (n Namespaced[T, PT]) List(ctx context.Context, opts ...ListOption) (*List[T], error) {
	return n.client.List(ctx, n.ns, opts...)
}

// ListAllNamespaces lists across every namespace regardless of the facade's
// pinned namespace, without mutating the receiver.
func (n Namespaced[T, PT]) ListAllNamespaces(ctx context.Context, opts ...ListOption) (*List[T], error) {
	return n.client.List(ctx, AllNamespaces, opts...)
}

func (n Namespaced[T, PT]) Create(ctx context.Context, obj *T) (T, error) {
	return n.client.Create(ctx, n.ns, obj)
}

func (n Namespaced[T, PT]) Update(ctx context.Context, obj *T) (T, error) {
	return n.client.Update(ctx, n.ns, obj)
}

func (n Namespaced[T, PT]) Delete(ctx context.Context, name string, opts *metav1.DeleteOptions) error {
	return n.client.Delete(ctx, n.ns, name, opts)
}

func (n Namespaced[T, PT]) DeleteAll(ctx context.Context, opts *metav1.DeleteOptions) error {
	return n.client.DeleteAll(ctx, n.ns, opts)
}

func (n Namespaced[T, PT]) GetStatus(ctx context.Context, name string) (T, error) {
	return n.client.GetStatus(ctx, n.ns, name)
}

func (n Namespaced[T, PT]) UpdateStatus(ctx context.Context, obj *T) (T, error) {
	return n.client.UpdateStatus(ctx, n.ns, obj)
}

func (n Namespaced[T, PT]) Watch(strategy RetryStrategy, opts ...ListOption) (*WatchTask[WatchEvent[T]], error) {
	return n.client.Watch(n.ns, strategy, opts...)
}

// WatchAllNamespaces watches across every namespace regardless of the
// facade's pinned namespace.
func (n Namespaced[T, PT]) WatchAllNamespaces(strategy RetryStrategy, opts ...ListOption) (*WatchTask[WatchEvent[T]], error) {
	return n.client.Watch(AllNamespaces, strategy, opts...)
}

// Follow is meaningful only on a Namespaced[corev1.Pod, *corev1.Pod].
func (n Namespaced[T, PT]) Follow(name, container string, previous, timestamps bool, strategy RetryStrategy) *WatchTask[string] {
	return n.client.Follow(n.ns, name, container, previous, timestamps, strategy)
}

// ClusterScoped is the cluster-level counterpart of Namespaced: no namespace
// dimension exists to pin or rebind.
type ClusterScoped[T any, PT ObjectPtr[T]] struct {
	client *Client[T, PT]
}

func NewClusterScoped[T any, PT ObjectPtr[T]](conn *Connection, descriptor ResourceDescriptor) ClusterScoped[T, PT] {
	return ClusterScoped[T, PT]{client: For[T, PT](conn, descriptor)}
}

func (c ClusterScoped[T, PT]) Get(ctx context.Context, name string, opts ...ReadOption) (T, error) {
	return c.client.Get(ctx, AllNamespaces, name, opts...)
}

func (c ClusterScoped[T, PT]) List(ctx context.Context, opts ...ListOption) (*List[T], error) {
	return c.client.List(ctx, AllNamespaces, opts...)
}

func (c ClusterScoped[T, PT]) Create(ctx context.Context, obj *T) (T, error) {
	return c.client.Create(ctx, AllNamespaces, obj)
}

func (c ClusterScoped[T, PT]) Update(ctx context.Context, obj *T) (T, error) {
	return c.client.Update(ctx, AllNamespaces, obj)
}

func (c ClusterScoped[T, PT]) Delete(ctx context.Context, name string, opts *metav1.DeleteOptions) error {
	return c.client.Delete(ctx, AllNamespaces, name, opts)
}

func (c ClusterScoped[T, PT]) DeleteAll(ctx context.Context, opts *metav1.DeleteOptions) error {
	return c.client.DeleteAll(ctx, AllNamespaces, opts)
}

func (c ClusterScoped[T, PT]) GetStatus(ctx context.Context, name string) (T, error) {
	return c.client.GetStatus(ctx, AllNamespaces, name)
}

func (c ClusterScoped[T, PT]) UpdateStatus(ctx context.Context, obj *T) (T, error) {
	return c.client.UpdateStatus(ctx, AllNamespaces, obj)
}

func (c ClusterScoped[T, PT]) Watch(strategy RetryStrategy, opts ...ListOption) (*WatchTask[WatchEvent[T]], error) {
	return c.client.Watch(AllNamespaces, strategy, opts...)
}

// Package kubeapi is a generic Kubernetes API client. It builds REST
// requests for arbitrary resource kinds from a (group, version, resource,
// namespace, verb) tuple, dispatches them over a configured transport, and
// turns chunked watch/follow responses into typed event streams.
package kubeapi

import (
	"fmt"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Scope says whether a resource kind lives inside a namespace or at cluster
// level. It is a static property of the resource, looked up once per Client.
type Scope int

const (
	ClusterScoped Scope = iota
	Namespaced
)

func (s Scope) String() string {
	if s == ClusterScoped {
		return "ClusterScoped"
	}
	return "Namespaced"
}

// namespaceKind enumerates the well-known namespace selectors plus the
// escape hatches for an explicit name and for "no namespace at all".
type namespaceKind int

const (
	nsNamed namespaceKind = iota
	nsDefault
	nsPublic
	nsSystem
	nsNodeLease
	nsAll
)

// NamespaceSelector picks which namespace a request targets. The well-known
// variants map to the cluster's reserved namespaces; AllNamespaces drops the
// namespace path segment entirely.
type NamespaceSelector struct {
	kind namespaceKind
	name string
}

// Named targets a namespace by its literal name.
func Named(name string) NamespaceSelector {
	return NamespaceSelector{kind: nsNamed, name: name}
}

var (
	Default       = NamespaceSelector{kind: nsDefault}
	Public        = NamespaceSelector{kind: nsPublic}
	System        = NamespaceSelector{kind: nsSystem}
	NodeLease     = NamespaceSelector{kind: nsNodeLease}
	AllNamespaces = NamespaceSelector{kind: nsAll}
)

// pathSegment resolves the selector to the literal namespace name used in
// the URL path, and whether the selector means "no namespace segment".
func (n NamespaceSelector) pathSegment() (segment string, isAll bool) {
	switch n.kind {
	case nsNamed:
		return n.name, false
	case nsDefault:
		return "default", false
	case nsPublic:
		return "kube-public", false
	case nsSystem:
		return "kube-system", false
	case nsNodeLease:
		return "kube-node-lease", false
	case nsAll:
		return "", true
	}
	return "", true
}

// Name returns the literal namespace name for selectors that have one; ok is
// false for AllNamespaces.
func (n NamespaceSelector) Name() (name string, ok bool) {
	segment, isAll := n.pathSegment()
	return segment, !isAll
}

// GroupVersionResource and GroupVersionKind are the standard apimachinery
// identifier types: they already satisfy spec's invariants (non-empty
// version, canonicalized empty group == core) so this module reuses them
// rather than re-declaring equivalent value types.
type (
	GroupVersionResource = schema.GroupVersionResource
	GroupVersionKind     = schema.GroupVersionKind
)

// APIPath computes the URL prefix for a GVR: /api/<version> for the legacy
// core API (empty group), /apis/<group>/<version> otherwise.
func APIPath(gvr GroupVersionResource) string {
	if gvr.Group == "" {
		return "/api/" + gvr.Version
	}
	return "/apis/" + gvr.Group + "/" + gvr.Version
}

// Capabilities is a value-level descriptor of which verbs a resource kind
// supports. The generic client consults it at call time instead of relying
// on a class hierarchy of per-verb marker interfaces.
type Capabilities struct {
	Readable            bool
	Listable            bool
	Creatable           bool
	Replaceable         bool
	Deletable           bool
	CollectionDeletable bool
	HasStatus           bool
	Scalable            bool
}

// FullCapabilities is the descriptor for a resource kind that supports every
// verb the generic client knows about.
var FullCapabilities = Capabilities{
	Readable: true, Listable: true, Creatable: true, Replaceable: true,
	Deletable: true, CollectionDeletable: true, HasStatus: true, Scalable: true,
}

// ResourceDescriptor binds a resource kind's identity, scope and
// capabilities together. A Client[T] is constructed with exactly one of
// these. The package has no registry of built-in kinds: every descriptor,
// built-in or custom, is built by hand.
type ResourceDescriptor struct {
	GVR          GroupVersionResource
	GVK          GroupVersionKind
	Scope        Scope
	Capabilities Capabilities
}

func (d ResourceDescriptor) String() string {
	return fmt.Sprintf("%s/%s, Resource=%s (%s)", d.GVR.Group, d.GVR.Version, d.GVR.Resource, d.Scope)
}

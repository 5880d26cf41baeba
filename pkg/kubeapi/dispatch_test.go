package kubeapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-logr/logr"
	"github.com/jarcoal/httpmock"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func newTestDispatcher(server http.RoundTripper) *Dispatcher {
	return NewDispatcher(server, 0, logr.Discard())
}

func buildGetRequest(t *testing.T, base string) *Request {
	t.Helper()
	u := mustBaseURL(t)
	req, err := NewBuilder(u, podDescriptor, NoAuth{}).
		Namespace(Default).Verb(http.MethodGet).ResourceName("web-0").Build()
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestDoDecodesSuccessBody(t *testing.T) {
	server := httpmock.NewMockTransport()
	server.RegisterResponder("GET", "=~pods/web-0",
		httpmock.NewJsonResponderOrPanic(200, &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "web-0"},
		}))
	d := newTestDispatcher(server)
	req := buildGetRequest(t, "")

	pod, err := Do[corev1.Pod](context.Background(), d, req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if pod.Name != "web-0" {
		t.Errorf("pod.Name = %q, want web-0", pod.Name)
	}
}

func TestDoReturnsStatusErrorForStatusEnvelope(t *testing.T) {
	server := httpmock.NewMockTransport()
	server.RegisterResponder("GET", "=~pods/web-0",
		httpmock.NewJsonResponderOrPanic(404, &metav1.Status{
			TypeMeta: metav1.TypeMeta{Kind: "Status"},
			Status:   metav1.StatusFailure,
			Reason:   metav1.StatusReasonNotFound,
			Code:     404,
		}))
	d := newTestDispatcher(server)
	req := buildGetRequest(t, "")

	_, err := Do[corev1.Pod](context.Background(), d, req)
	se, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("error is %T, want *StatusError", err)
	}
	if se.StatusCode() != 404 {
		t.Errorf("StatusCode() = %d, want 404", se.StatusCode())
	}
}

func TestDoReturnsUnexpectedErrorForNonStatusBody(t *testing.T) {
	server := httpmock.NewMockTransport()
	server.RegisterResponder("GET", "=~pods/web-0", httpmock.NewStringResponder(500, "boom"))
	d := newTestDispatcher(server)
	req := buildGetRequest(t, "")

	_, err := Do[corev1.Pod](context.Background(), d, req)
	ue, ok := err.(*UnexpectedError)
	if !ok {
		t.Fatalf("error is %T, want *UnexpectedError", err)
	}
	if ue.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", ue.StatusCode)
	}
}

func TestDoReturnsEmptyResponseError(t *testing.T) {
	server := httpmock.NewMockTransport()
	server.RegisterResponder("GET", "=~pods/web-0", httpmock.NewStringResponder(200, ""))
	d := newTestDispatcher(server)
	req := buildGetRequest(t, "")

	_, err := Do[corev1.Pod](context.Background(), d, req)
	if _, ok := err.(*EmptyResponseError); !ok {
		t.Fatalf("error is %T, want *EmptyResponseError", err)
	}
}

func TestDoDeleteCompatibilityShimSynthesizesStatus(t *testing.T) {
	server := httpmock.NewMockTransport()
	server.RegisterResponder("GET", "=~pods/web-0",
		httpmock.NewJsonResponderOrPanic(200, &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "web-0"},
		}))
	d := newTestDispatcher(server)
	req := buildGetRequest(t, "")

	status, err := Do[metav1.Status](context.Background(), d, req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if status.Code != 200 {
		t.Errorf("synthesized status code = %d, want 200", status.Code)
	}
}

func TestOpenStreamFailsOnNonSuccessStatus(t *testing.T) {
	server := httpmock.NewMockTransport()
	server.RegisterResponder("GET", "=~pods/web-0", httpmock.NewStringResponder(403, "forbidden"))
	d := newTestDispatcher(server)
	req := buildGetRequest(t, "")

	_, err := d.openStream(context.Background(), req)
	if _, ok := err.(*UnexpectedError); !ok {
		t.Fatalf("error is %T, want *UnexpectedError", err)
	}
}

func TestOpenStreamReturnsBodyOnSuccess(t *testing.T) {
	server := httpmock.NewMockTransport()
	server.RegisterResponder("GET", "=~pods/web-0", httpmock.NewStringResponder(200, `{"type":"ADDED"}`+"\n"))
	d := newTestDispatcher(server)
	req := buildGetRequest(t, "")

	body, err := d.openStream(context.Background(), req)
	if err != nil {
		t.Fatalf("openStream: %v", err)
	}
	defer body.Close()
}

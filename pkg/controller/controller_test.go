package controller

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/jarcoal/httpmock"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/go-kube/kubeapi/pkg/kubeapi"
)

func getClient(t *testing.T) (*kubeapi.Connection, *httpmock.MockTransport) {
	server := httpmock.NewMockTransport()
	conn, err := kubeapi.NewClientWithTransport(&kubeapi.ClientConfig{}, server, logr.Discard())
	if err != nil {
		t.Fatal(err)
	}
	return conn, server
}

func addPipeResponder(server *httpmock.MockTransport, path string) io.Writer {
	r, w := io.Pipe()
	responder := httpmock.ResponderFromResponse(&http.Response{StatusCode: 200, Body: r})
	server.RegisterResponder("GET", path, responder)
	return w
}

type testRateLimiter struct {
	ask  chan struct{}
	tick chan struct{}
}

func (rl *testRateLimiter) AskTick() {
	rl.ask <- struct{}{}
}

func (rl *testRateLimiter) GetChan() <-chan struct{} {
	return rl.tick
}

func (rl *testRateLimiter) Stop() {
}

func runTestController(conn *kubeapi.Connection) *Controller {
	rl := &testRateLimiter{make(chan struct{}), make(chan struct{})}
	return NewController(conn, rl, "default")
}

func TestCreationError(t *testing.T) {
	conn, server := getClient(t)
	// FIXME: Add some helper functions

	// No responder at all: Create is ignored (not a *StatusError), and the
	// subsequent one-shot Watch fails to even open the stream, so the only
	// event the controller ever sees is the retry policy giving up.
	controller := runTestController(conn)
	err := <-controller.Errors
	if err == nil {
		t.Error("expected error")
	} else {
		expected := "Could not add CRD: Watch failed: kubeapi: max retries reached"
		if !strings.HasPrefix(err.Error(), expected) {
			t.Error("wrong error", err.Error())
		}
	}

	// A 404 also never opens the stream: same outcome as no responder.
	server.RegisterNoResponder(httpmock.NewStringResponder(404, "dummy"))
	stopController(t, controller)
	controller = runTestController(conn)
	err = <-controller.Errors
	if err == nil {
		t.Error("expected error")
	} else {
		expected := "Could not add CRD: Watch failed: kubeapi: max retries reached"
		if !strings.HasPrefix(err.Error(), expected) {
			t.Error("wrong error", err.Error())
		}
	}

	// A 201 with a body that isn't even a WatchEvent opens the stream, but
	// the first (and only) line fails to decode, which is the error the
	// controller sees; the retry policy's own give-up event never arrives
	// because the loop returns on the first non-nil Err.
	server.RegisterNoResponder(httpmock.NewStringResponder(201, "dummy"))
	stopController(t, controller)
	controller = runTestController(conn)
	err = <-controller.Errors
	if err == nil {
		t.Error("expected error")
	} else {
		expected := "Could not add CRD: Watch failed: kubeapi: decoding error: decode WatchEvent:"
		if !strings.HasPrefix(err.Error(), expected) {
			t.Error("wrong error", err.Error())
		}
	}

	server.RegisterNoResponder(httpmock.NewStringResponder(201, `{"type": "XYZ"}`))
	stopController(t, controller)
	controller = runTestController(conn)
	err = <-controller.Errors
	if err == nil {
		t.Error("expected error")
	} else {
		expected := "Could not add CRD: Watch failed: kubeapi: decoding error: Error parsing EventType: invalid EventType: XYZ"
		if err.Error() != expected {
			t.Error("wrong error", err.Error())
		}
	}

	server.RegisterNoResponder(httpmock.NewStringResponder(201, `{"type": "ADDED"}`))
	stopController(t, controller)
	controller = runTestController(conn)
	err = <-controller.Errors
	if err == nil {
		t.Error("expected error")
	} else {
		expected := "Could not add CRD: Watch failed: kubeapi: decoding error: decode watched object:"
		if !strings.HasPrefix(err.Error(), expected) {
			t.Error("wrong error", err.Error())
		}
	}
	stopController(t, controller)

	// A DELETED event with an empty object decodes fine and is skipped; the
	// stream then ends, and the next thing the controller sees is the retry
	// policy giving up since this is a one-shot watch.
	server.RegisterNoResponder(httpmock.NewStringResponder(201,
		`{"type": "DELETED", "object": {}}`))
	controller = runTestController(conn)
	err = <-controller.Errors
	if err == nil {
		t.Error("expected error")
	} else {
		expected := "Could not add CRD: Watch failed: kubeapi: max retries reached"
		if !strings.HasPrefix(err.Error(), expected) {
			t.Error("wrong error", err.Error())
		}
	}
	stopController(t, controller)
}

// FIXME: Create a struct for the return
func startTestController(t *testing.T) (*Controller,
	*httpmock.MockTransport, io.Writer, io.Writer) {
	conn, server := getClient(t)

	server.RegisterNoResponder(httpmock.NewNotFoundResponder(t.Fatal))

	body := `{"type": "ADDED", "object": {"status": {"conditions": [{"type": "Established", "status": "True"}]}}}`

	server.RegisterResponder("POST", "/apis/apiextensions.k8s.io/v1/customresourcedefinitions", httpmock.NewStringResponder(201, ""))
	// FIXME: convert all users of =~ to use fixed path, or at least start with ^
	server.RegisterResponder("GET", "=~apiextensions.k8s.io/v1/customresourcedefinitions.*",
		httpmock.NewStringResponder(200, body))

	foos := addPipeResponder(server, "=~samplecontroller.example.com/v1alpha1/namespaces/default/foos.*")
	deployments := addPipeResponder(server, "=~apps/v1/namespaces/default/deployments.*")
	controller := runTestController(conn)

	return controller, server, foos, deployments
}

func stopController(t *testing.T, c *Controller) {
	c.RequestStop()
	for err := range c.Errors {
		t.Errorf("unxpected error %s", err)
	}
}

func TestBrokenFoo(t *testing.T) {
	controller, _, foos, _ := startTestController(t)

	foos.Write([]byte("broken\n"))
	if err := <-controller.Errors; err == nil {
		t.Error("expected error")
	} else {
		if !strings.HasPrefix(err.Error(), "Reading Foos: kubeapi: decoding error: decode WatchEvent:") {
			t.Error("wrong error", err.Error())
		}
	}

	stopController(t, controller)
}

func TestBrokenDeployment(t *testing.T) {
	controller, _, _, deployments := startTestController(t)

	deployments.Write([]byte("broken\n"))
	if err := <-controller.Errors; err == nil {
		t.Error("expected error")
	} else {
		if !strings.HasPrefix(err.Error(),
			"Reading deployments: kubeapi: decoding error: decode WatchEvent:") {
			t.Error("wrong error", err.Error())
		}
	}

	stopController(t, controller)
}

func marshal(t *testing.T, Type string, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatal("Marhsal failed", err)
	}
	we := metav1.WatchEvent{
		Type:   Type,
		Object: runtime.RawExtension{Raw: data},
	}
	data, err = json.Marshal(&we)
	if err != nil {
		t.Fatal("Marhsal failed", err)
	}
	return append(data, '\n')
}

func TestFoo(t *testing.T) {
	r, w := io.Pipe()
	log.SetOutput(w)
	var buf [1024]byte

	controller, server, foos, deployments := startTestController(t)
	rl := controller.rl.(*testRateLimiter)

	foo := Foo{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "abc",
			Namespace: "xyz",
			UID:       "2a198646-da46-417a-be53-b8cd5fcfbdda",
		},
		Spec: FooSpec{
			DeploymentName: "bar",
			Replicas:       1,
		},
	}

	deployment := appsv1.Deployment{}
	deploymentOK := make(chan struct{})

	checkDeployment := func(req *http.Request) (*http.Response, error) {
		data, err := ioutil.ReadAll(req.Body)
		if err != nil {
			t.Fatal("Could not read request body: ", err)
		}
		err = json.Unmarshal(data, &deployment)
		if err != nil {
			t.Fatal("Could not unmarshal deployment: ", err)
		}
		if deployment.Namespace != foo.Namespace {
			t.Error("Wrong namespace: ", deployment.Namespace)
		}
		if len(deployment.OwnerReferences) != 1 {
			t.Error("Wrong OwnerReferences: ", deployment.OwnerReferences)
		}
		owner := deployment.OwnerReferences[0]
		if owner.APIVersion != Group+"/"+Version {
			t.Error("Wrong APIVersion: ", owner.APIVersion)
		}
		if owner.Kind != Kind {
			t.Error("Wrong Kind: ", owner.Kind)
		}
		if owner.Name != foo.Name {
			t.Error("Wrong Name: ", owner.Name)
		}
		if owner.UID != foo.UID {
			t.Error("Wrong UID: ", owner.UID)
		}
		if !*owner.Controller {
			t.Error("Owner is not a controller")
		}
		if !*owner.BlockOwnerDeletion {
			t.Error("Owner doesn't block deletion")
		}
		spec := deployment.Spec
		if *spec.Replicas != foo.Spec.Replicas {
			t.Error("Wrong repilca number: ", *spec.Replicas)
		}
		checkLabels := func(labels map[string]string) {
			if len(labels) != 1 {
				t.Error("Wrong MatchLabels: ", labels)
			}
			if labels["controller"] != "abc" {
				t.Error("Wrong MatchLabels: ", labels)
			}
		}
		checkLabels(spec.Selector.MatchLabels)
		checkLabels(spec.Template.Labels)
		containers := spec.Template.Spec.Containers
		if len(containers) != 1 {
			t.Error("Wrong containers: ", containers)
		}
		if containers[0].Name != "nginx" {
			t.Error("Wrong container name: ", containers[0].Name)
		}
		if containers[0].Image != "nginx:latest" {
			t.Error("Wrong container image: ", containers[0].Image)
		}

		deploymentOK <- struct{}{}

		if *spec.Replicas == 3 {
			return httpmock.NewStringResponse(401, "3 is not OK"), nil
		}
		return httpmock.NewStringResponse(201, ""), nil
	}

	server.RegisterResponder("POST", "/apis/apps/v1/namespaces/xyz/deployments", checkDeployment)

	foos.Write(marshal(t, "ADDED", &foo))

	step := func() {
		// Wait for the controller to ask at least once
		<-rl.ask

		// Authorize the controller to continue. We still have to keep an eye on rl.ask.
	loop:
		for {
			select {
			case rl.tick <- struct{}{}:
				break loop
			case <-rl.ask:
			}
		}

		// If the controller issued more requests, clear them.
		for {
			select {
			case <-rl.ask:
			default:
				return
			}
		}
	}
	step()
	<-deploymentOK

	deployments.Write(marshal(t, "ADDED", &deployment))

	step()

	server.RegisterResponder("PUT",
		"/apis/apps/v1/namespaces/xyz/deployments/"+foo.Spec.DeploymentName, checkDeployment)

	foo.Spec.Replicas = 3
	foos.Write(marshal(t, "ADDED", &foo))
	step()
	<-deploymentOK
	n, err := r.Read(buf[:])
	data := buf[:n]
	expected := `Synchronize failed, will retry: kubeapi: unexpected response: code=401 body="3 is not OK"` + "\n"
	if !strings.HasSuffix(string(data), expected) {
		t.Errorf("wrong warning: '%s'", string(data))
	}
	// Test retry
	step()
	<-deploymentOK
	n, err = r.Read(buf[:])
	data = buf[:n]
	if !strings.HasSuffix(string(data), expected) {
		t.Errorf("wrong warning: '%s'", string(data))
	}

	// The second failure synchronization has requested another tick
	<-rl.ask

	foo.Spec.Replicas = 2
	foos.Write(marshal(t, "ADDED", &foo))
	step()
	<-deploymentOK
	deployments.Write(marshal(t, "ADDED", &deployment))
	step()

	// The deployment is recreated if deleted
	deployments.Write(marshal(t, "DELETED", &deployment))
	step()
	<-deploymentOK
	deployments.Write(marshal(t, "ADDED", &deployment))
	step()

	// check that nothing happens
	deployments.Write(marshal(t, "ADDED", &deployment))

	step()

	deployment.OwnerReferences[0].UID = "wrong"

	deployments.Write(marshal(t, "ADDED", &deployment))

	step()

	n, err = r.Read(buf[:])
	if err != nil {
		t.Fatal("ReadError", err)
	}
	data = buf[:n]
	if !strings.HasSuffix(string(data), "Deployment xyz:bar is not owned by us.\n") {
		t.Errorf("wrong warning: %s", data)
	}

	foos.Write(marshal(t, "DELETED", &foo))
	step()

	controller.RequestStop()
	for err := range controller.Errors {
		t.Errorf("unxpected error %s", err)
	}
}

package controller

import (
	"context"
	"fmt"
	"log"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/go-kube/kubeapi/pkg/kubeapi"
	"github.com/go-kube/kubeapi/pkg/ratelimit"
)

const Version = "v1alpha1"
const Group = "samplecontroller.example.com"
const Kind = "Foo"

var (
	fooGVR = kubeapi.GroupVersionResource{Group: Group, Version: Version, Resource: "foos"}
	crdGVR = kubeapi.GroupVersionResource{Group: "apiextensions.k8s.io", Version: "v1", Resource: "customresourcedefinitions"}
	depGVR = kubeapi.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"}
)

func addCRD(ctx context.Context, crds kubeapi.ClusterScoped[apiextensionsv1.CustomResourceDefinition, *apiextensionsv1.CustomResourceDefinition], spec apiextensionsv1.CustomResourceDefinitionSpec) error {
	name := spec.Names.Plural + "." + spec.Group
	crd := apiextensionsv1.CustomResourceDefinition{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec:       spec,
	}

	_, err := crds.Create(ctx, &crd)

	// Ignore 409 (Conflict)
	// FIXME: Update with a PUT with a metadata.resourceVersion.
	if se, ok := err.(*kubeapi.StatusError); ok && se.StatusCode() != 409 {
		return se
	}

	task, err := crds.Watch(kubeapi.RetryPolicyNeverStrategy(), kubeapi.WithFieldSelector(kubeapi.FieldEq("metadata.name", name)))
	if err != nil {
		return err
	}
	events := task.Start(ctx)
	defer task.Cancel()

	for ev := range events {
		if ev.Err != nil {
			return fmt.Errorf("Watch failed: %w", ev.Err)
		}
		if ev.Item.Type == kubeapi.Deleted {
			continue
		}
		item := ev.Item.Object
		for _, cond := range item.Status.Conditions {
			if cond.Type == "Established" &&
				cond.Status == apiextensionsv1.ConditionTrue {
				return nil
			}
		}
	}
	return nil
}

func addFooCRD(ctx context.Context, crds kubeapi.ClusterScoped[apiextensionsv1.CustomResourceDefinition, *apiextensionsv1.CustomResourceDefinition]) error {
	crdNames := apiextensionsv1.CustomResourceDefinitionNames{
		Kind:   Kind,
		Plural: "foos",
	}
	crdSchemaSpec := apiextensionsv1.JSONSchemaProps{
		Type: "object",
		Properties: map[string]apiextensionsv1.JSONSchemaProps{
			"deploymentName": apiextensionsv1.JSONSchemaProps{Type: "string"},
			"replicas":       apiextensionsv1.JSONSchemaProps{Type: "integer"},
		},
	}
	crdSchema := &apiextensionsv1.JSONSchemaProps{
		Type:       "object",
		Properties: map[string]apiextensionsv1.JSONSchemaProps{"spec": crdSchemaSpec},
	}
	crdVersion := apiextensionsv1.CustomResourceDefinitionVersion{
		Name:    Version,
		Schema:  &apiextensionsv1.CustomResourceValidation{OpenAPIV3Schema: crdSchema},
		Served:  true,
		Storage: true,
	}
	crdSpec := apiextensionsv1.CustomResourceDefinitionSpec{
		Group:    Group,
		Names:    crdNames,
		Scope:    "Namespaced",
		Versions: []apiextensionsv1.CustomResourceDefinitionVersion{crdVersion},
	}
	return addCRD(ctx, crds, crdSpec)
}

type FooSpec struct {
	DeploymentName string `json:"deploymentName"`
	Replicas       int32  `json:"replicas"`
}

type Foo struct {
	metav1.ObjectMeta `json:"metadata"`
	Spec              FooSpec `json:"spec"`
}

type Controller struct {
	Namespace string
	Errors    chan error

	rl ratelimit.RateLimiter

	conn        *kubeapi.Connection
	foos        kubeapi.Namespaced[Foo, *Foo]
	deployments kubeapi.Namespaced[appsv1.Deployment, *appsv1.Deployment]
	crds        kubeapi.ClusterScoped[apiextensionsv1.CustomResourceDefinition, *apiextensionsv1.CustomResourceDefinition]

	fooTask *kubeapi.WatchTask[kubeapi.WatchEvent[Foo]]
	depTask *kubeapi.WatchTask[kubeapi.WatchEvent[appsv1.Deployment]]
}

// RequestStop cancels both watch tasks. Done once c.Errors is closed.
func (c *Controller) RequestStop() {
	if c.fooTask != nil {
		c.fooTask.Cancel()
	}
	if c.depTask != nil {
		c.depTask.Cancel()
	}
}

type controllerStatus struct {
	// Map from name to spec
	foos map[string]Foo

	// Map from the name to deployment
	deployments map[string]appsv1.Deployment

	// Set of names of Foos we have to check
	todo map[string]struct{}
}

func newDeployment(foo *Foo) appsv1.Deployment {
	ref := metav1.NewControllerRef(foo, schema.GroupVersionKind{
		Group:   Group,
		Version: Version,
		Kind:    Kind,
	})
	meta := metav1.ObjectMeta{
		Name:            foo.Spec.DeploymentName,
		Namespace:       foo.Namespace,
		OwnerReferences: []metav1.OwnerReference{*ref},
	}
	labels := map[string]string{
		"controller": foo.Name,
	}
	container := corev1.Container{
		Name:  "nginx",
		Image: "nginx:latest",
	}
	template := corev1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{Labels: labels},
		Spec:       corev1.PodSpec{Containers: []corev1.Container{container}},
	}
	spec := appsv1.DeploymentSpec{
		Selector: &metav1.LabelSelector{MatchLabels: labels},
		Template: template,
		Replicas: &foo.Spec.Replicas,
	}
	ret := appsv1.Deployment{
		ObjectMeta: meta,
		Spec:       spec,
	}
	return ret
}

func synchronize(ctx context.Context, deployments kubeapi.Namespaced[appsv1.Deployment, *appsv1.Deployment], status *controllerStatus) error {
	for item := range status.todo {
		// FIXME: Split a processsOneItem
		foo, has_foo := status.foos[item]
		if !has_foo {
			// There is nothing for us to do. The Kubernetes garbage collector will
			// delete the deployment for us.
			delete(status.todo, item)
			continue
		}

		dep, has_dep := status.deployments[foo.Spec.DeploymentName]
		if has_dep {
			if !metav1.IsControlledBy(&dep, &foo) {
				log.Printf("Deployment %s:%s is not owned by us.", dep.Namespace,
					dep.Name)
				// Don't delete from todo so we try again
				continue
			}
			if foo.Spec.Replicas == *dep.Spec.Replicas {
				delete(status.todo, item)
				continue
			}
		}

		newDep := newDeployment(&foo)
		var err error
		if has_dep {
			newDep.ResourceVersion = dep.ResourceVersion
			_, err = deployments.Namespace(kubeapi.Named(foo.Namespace)).Update(ctx, &newDep)
		} else {
			_, err = deployments.Namespace(kubeapi.Named(foo.Namespace)).Create(ctx, &newDep)
		}
		if err != nil {
			return err
		}
		delete(status.todo, item)

		// FIXME2: What happens if DeploymentName
		// changes? The original sample controller
		// just creates a new deployment, that is
		// almost certenly a bug.
	}
	return nil
}

// processResources goes over the existing Foos and Deployments
// and synchronizes them.
func processResources(ctx context.Context, c *Controller,
	deploymentsCh <-chan kubeapi.TaskEvent[kubeapi.WatchEvent[appsv1.Deployment]],
	foosCh <-chan kubeapi.TaskEvent[kubeapi.WatchEvent[Foo]]) {
	defer close(c.Errors)

	status := controllerStatus{}
	status.foos = make(map[string]Foo)
	status.deployments = make(map[string]appsv1.Deployment)
	status.todo = make(map[string]struct{})

	addTODO := func(deployment *appsv1.Deployment) {
		// Only add to TODO if we own it
		for _, o := range deployment.OwnerReferences {
			// It is OK to not be supper strict in
			// here. We will just try to synchronize more
			// often.
			if o.Kind == Kind {
				c.rl.AskTick()
				status.todo[o.Name] = struct{}{}
				return
			}
		}
	}

	for {
		select {
		case d, ok := <-deploymentsCh:
			if !ok {
				deploymentsCh = nil
				break
			}
			if d.Err != nil {
				c.Errors <- fmt.Errorf("Reading deployments: %w", d.Err)
				return
			}
			newDeployment := d.Item.Object
			oldDeployment, ok := status.deployments[newDeployment.Name]
			if d.Item.Type == kubeapi.Deleted {
				delete(status.deployments, newDeployment.Name)
			} else {
				status.deployments[newDeployment.Name] = newDeployment
			}

			addTODO(&newDeployment)
			if ok {
				addTODO(&oldDeployment)
			}

		case f, ok := <-foosCh:
			if !ok {
				foosCh = nil
				break
			}
			if f.Err != nil {
				c.Errors <- fmt.Errorf("Reading Foos: %w", f.Err)
				return
			}
			newFoo := f.Item.Object
			c.rl.AskTick()
			if f.Item.Type == kubeapi.Deleted {
				delete(status.foos, newFoo.Name)
			} else {
				status.foos[newFoo.Name] = newFoo
			}
			status.todo[newFoo.Name] = struct{}{}

		case <-c.rl.GetChan():
			if err := synchronize(ctx, c.deployments, &status); err != nil {
				log.Printf("Synchronize failed, will retry: %s", err)
				c.rl.AskTick()
			}
		}

		// We are done if both channels were closed
		if deploymentsCh == nil && foosCh == nil {
			return
		}
	}
}

// NewController builds a Controller watching namespace for Foo and
// Deployment changes, driven off the given kubeapi Connection.
func NewController(conn *kubeapi.Connection, rl ratelimit.RateLimiter,
	namespace string) *Controller {
	ret := &Controller{}

	errors := make(chan error)
	ret.Errors = errors

	ret.rl = rl
	ret.conn = conn
	ret.Namespace = namespace

	ret.foos = kubeapi.NewNamespaced[Foo, *Foo](conn, kubeapi.ResourceDescriptor{
		GVR: fooGVR, Scope: kubeapi.Namespaced, Capabilities: kubeapi.FullCapabilities,
	}, kubeapi.Named(namespace))
	ret.deployments = kubeapi.NewNamespaced[appsv1.Deployment, *appsv1.Deployment](conn, kubeapi.ResourceDescriptor{
		GVR: depGVR, Scope: kubeapi.Namespaced, Capabilities: kubeapi.FullCapabilities,
	}, kubeapi.Named(namespace))
	ret.crds = kubeapi.NewClusterScoped[apiextensionsv1.CustomResourceDefinition, *apiextensionsv1.CustomResourceDefinition](conn, kubeapi.ResourceDescriptor{
		GVR: crdGVR, Scope: kubeapi.ClusterScoped, Capabilities: kubeapi.FullCapabilities,
	})

	ret.start()

	return ret
}

func (c *Controller) startAux() {
	ctx := context.Background()

	err := addFooCRD(ctx, c.crds)
	if err != nil {
		c.Errors <- fmt.Errorf("Could not add CRD: %w", err)
		close(c.Errors)
		return
	}

	fooTask, err := c.foos.Watch(kubeapi.RetryPolicyNeverStrategy())
	if err != nil {
		c.Errors <- fmt.Errorf("Could not watch Foos: %w", err)
		close(c.Errors)
		return
	}
	c.fooTask = fooTask
	foosCh := fooTask.Start(ctx)

	depTask, err := c.deployments.Watch(kubeapi.RetryPolicyNeverStrategy())
	if err != nil {
		c.Errors <- fmt.Errorf("Could not watch deployments: %w", err)
		close(c.Errors)
		return
	}
	c.depTask = depTask
	deploymentsCh := depTask.Start(ctx)

	processResources(ctx, c, deploymentsCh, foosCh)
}

func (c *Controller) start() {
	go c.startAux()
}

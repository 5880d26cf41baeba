package main

import (
	"os"
	"time"

	"github.com/go-logr/logr/funcr"

	"github.com/go-kube/kubeapi/pkg/controller"
	"github.com/go-kube/kubeapi/pkg/kubeapi"
	"github.com/go-kube/kubeapi/pkg/ratelimit"
)

// resyncDebounce is how long the controller waits after the last resync
// request before actually resyncing, coalescing bursts of watch events.
const resyncDebounce = 2 * time.Second

func main() {
	config, err := kubeapi.LoadConfig("")
	if err != nil {
		panic(err)
	}

	log := funcr.New(func(prefix, args string) {
		os.Stderr.WriteString(prefix + " " + args + "\n")
	}, funcr.Options{})

	conn, err := kubeapi.NewClient(config, log)
	if err != nil {
		panic(err)
	}

	ctrl := controller.NewController(conn, ratelimit.AfterIdle(resyncDebounce), "default")

	done := make(chan struct{})
	go func() {
		for err := range ctrl.Errors {
			panic(err)
		}
		close(done)
	}()

	var v [1]byte
	os.Stdin.Read(v[:])
	ctrl.RequestStop()
	<-done
}

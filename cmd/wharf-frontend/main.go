// Command wharf-frontend is the gRPC-over-stdio entrypoint BuildKit
// execs as a frontend container: it hands off to grpcclient.RunFromEnvironment
// with the orchestration BuildFunc, mirroring the original's
// `run_frontend(CargoFrontend)` call in main.rs.
package main

import (
	"context"
	"os"

	"github.com/moby/buildkit/frontend/grpcclient"
	"github.com/sirupsen/logrus"

	"github.com/shmocker/wharf/internal/frontend"
)

func main() {
	ctx := context.Background()

	if err := grpcclient.RunFromEnvironment(ctx, frontend.Build); err != nil {
		logrus.Errorf("%+v", err)
		os.Exit(1)
	}
}

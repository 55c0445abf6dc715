package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/chatstream/internal/dagger"
)

// Build and return a directory holding the chatstream binary for each
// linux architecture.
func (c *Chatstream) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	platforms := []dagger.Platform{"linux/amd64", "linux/arm64"}

	outputs := dag.Directory()

	for _, platform := range platforms {
		path := string(platform) + "/"

		// CGO rules out cross compiling, so build inside a container of
		// the target platform.
		build := dag.Container(dagger.ContainerOpts{Platform: platform}).
			From("golang:1.25-bookworm").
			WithExec([]string{"apt-get", "update"}).
			WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
			WithEnvVariable("CGO_ENABLED", "1").
			WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
			WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build-"+strings.ReplaceAll(string(platform), "/", "-"))).
			WithDirectory("/src", c.Source).
			WithWorkdir("/src").
			WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/chatstream"})

		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (c *Chatstream) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now().UTC().Format(time.RFC3339)

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/papercomputeco/chatstream/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/chatstream/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/chatstream/pkg/utils.Buildtime=%s'", buildtime),
	}

	return c.Build(ctx, strings.Join(ldflags, " "))
}

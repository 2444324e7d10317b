// Package svcinit is the service supervisor of an init process. It loads
// declarative service descriptors, orders them by their dependencies and
// launches each one as an isolated OS process.
//
// The core of the package is the Registry, which stores every loaded
// Service in a dependency graph and tracks whether it is online:
//
//	loader := svcinit.NewLoader(logger)
//	services, err := loader.LoadDir("/etc/svcinit.d")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reg := svcinit.NewRegistry(svcinit.WithLogger(logger))
//	reg.PushServices(services)
//
//	// Start everything, dependencies first
//	err = reg.StartServices(context.Background())
//
// # Descriptors
//
// A descriptor is a YAML file whose name, minus the extension, is the
// service name. Every method is a command; "start" is run by the
// supervisor, other methods only through Registry.CallMethod.
//
//	dependencies: [netd]
//	provides: ["http:"]
//	user: www
//	namespace: ["file:", "tcp:"]
//	methods:
//	  start:
//	    cmd: [/usr/bin/httpd, --port, $HTTP_PORT]
//
// Dependencies name other services or the capability tags they provide.
// They are resolved when a batch is pushed, after every service of the
// batch is registered; a dependency naming nothing known at that point is
// logged and dropped.
//
// # Start order
//
// StartServices splits the graph into groups. Every service in a group has
// all of its dependencies in earlier groups, so the members of a group are
// started concurrently and the next group only begins once the current
// one has finished. A service is online once its start method exits
// successfully.
//
// # Isolation
//
// On Linux the ExecLauncher opens the executable in the supervisor, then
// the child enters fresh namespaces for every resource kind not named in
// the service's allow-list, switches groups, gid and uid, changes
// directory and execs the already open file. Other Unix systems get the
// same identity handling without namespaces.
//
// # Supervisor
//
// Supervisor wires a Config, a Loader and a Registry together for the
// cmd/svcinit binary, adding chain loading of further directories once a
// capability is online and watching boot directories for new descriptors.
package svcinit

// Package all wires all built-in provisioning backends into the provision
// factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete guard backend to run,
// which in turn register their factories with the provision package.
//
// Importing it makes the following kinds available at runtime:
//
//   - "postgres" (geoetl/internal/provision/postgres)
//   - "mysql"    (geoetl/internal/provision/mysql)
//   - "mssql"    (geoetl/internal/provision/mssql)
//
// Typical usage (in cmd/provision/main.go or a similar wiring layer):
//
//	import (
//	    _ "geoetl/internal/provision/all" // enable all built-in backends
//
//	    "geoetl/internal/provision"
//	)
//
//	g, err := provision.Open(ctx, kind, dsn)
//	if err != nil { ... }
//	defer g.Close(ctx)
//	status, err := provision.Ensure(ctx, g, name)
//
// A binary that only needs one backend can import that backend package
// directly instead of this one.
package all

import (
	_ "geoetl/internal/provision/mssql"
	_ "geoetl/internal/provision/mysql"
	_ "geoetl/internal/provision/postgres"
)

// Command migrate applies or rolls back the schema without starting the server.
//
//	migrate up
//	migrate down
//	migrate goto <version>
package main

import (
	"os"

	"github.com/versehub/community-api/pkg/logger"
)

func main() {
	log := logger.New()

	if err := newRootCmd(log, openDatabase).Execute(); err != nil {
		log.Error().Err(err).Msg("Migration failed")
		os.Exit(1)
	}
}

package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/storage"
	"github.com/papercomputeco/chatstream/pkg/storage/postgres"
	"github.com/papercomputeco/chatstream/pkg/storage/storagetest"
)

var _ storage.Driver = (*postgres.Driver)(nil)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("CHATSTREAM_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("CHATSTREAM_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	storagetest.DriverBehaviors(func() storage.Driver {
		ctx := context.Background()

		driver, err := postgres.NewDriver(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())

		// Clean all rows before each test for isolation.
		_, err = driver.DB.ExecContext(ctx, "TRUNCATE messages, conversations")
		Expect(err).NotTo(HaveOccurred())
		return driver
	})
})

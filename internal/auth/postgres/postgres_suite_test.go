// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/holoauth/internal/store"
)

var (
	suiteCtx  context.Context
	container *tcpostgres.PostgresContainer
	testPool  *pgxpool.Pool
)

func TestPostgresRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Postgres User Repository Suite")
}

var _ = BeforeSuite(func() {
	suiteCtx = context.Background()

	var err error
	container, err = tcpostgres.Run(suiteCtx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("holoauth"),
		tcpostgres.WithUsername("holoauth"),
		tcpostgres.WithPassword("holoauth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := container.ConnectionString(suiteCtx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	testPool, err = store.Connect(suiteCtx, connStr, store.ConnectOptions{})
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if testPool != nil {
		testPool.Close()
	}
	if container != nil {
		Expect(container.Terminate(suiteCtx)).To(Succeed())
	}
})

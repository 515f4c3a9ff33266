// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

//go:build integration

package store_test

import (
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/azap/azap/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(migrator.Up()).To(Succeed())
			Expect(migrator.Close()).To(Succeed())
		})
	})

	It("starts fully applied", func() {
		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Version).To(Equal(uint(2)))
		Expect(st.Dirty).To(BeFalse())
		Expect(st.Pending).To(BeEmpty())
	})

	It("steps down and back up", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		v, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint(1)))

		var exists bool
		Expect(pool.QueryRow(suiteCtx, `SELECT to_regclass('public.sessions') IS NOT NULL`).Scan(&exists)).To(Succeed())
		Expect(exists).To(BeFalse())

		Expect(migrator.Steps(1)).To(Succeed())
		Expect(pool.QueryRow(suiteCtx, `SELECT to_regclass('public.sessions') IS NOT NULL`).Scan(&exists)).To(Succeed())
		Expect(exists).To(BeTrue())
	})

	It("is idempotent when already current", func() {
		Expect(migrator.Up()).To(Succeed())
	})
})

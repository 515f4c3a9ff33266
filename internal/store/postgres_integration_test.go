// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

//go:build integration

package store_test

import (
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/azap/azap/internal/auth"
	authpg "github.com/azap/azap/internal/auth/postgres"
	"github.com/azap/azap/internal/session"
)

func ptr(v int32) *int32 { return &v }

var _ = Describe("CredentialRepository", func() {
	var repo *authpg.CredentialRepository

	BeforeEach(func() {
		truncateAll()
		repo = authpg.NewCredentialRepository(pool)
	})

	It("round-trips an inserted credential", func() {
		id, err := repo.InsertCredential(suiteCtx, "$scrypt$ln=15,r=8,p=1$c2FsdA$a2V5")
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(BeNumerically(">", 0))

		cred, err := repo.FindCredential(suiteCtx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(cred.ID).To(Equal(id))
		Expect(cred.SecretHash).To(Equal("$scrypt$ln=15,r=8,p=1$c2FsdA$a2V5"))
	})

	It("reports unknown ids as not found", func() {
		_, err := repo.FindCredential(suiteCtx, 4242)
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("resolves roles by shared id", func() {
		id, err := repo.InsertCredential(suiteCtx, "h")
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Exec(suiteCtx, `INSERT INTO locations (id, name) VALUES ($1, 'North')`, id)
		Expect(err).NotTo(HaveOccurred())

		isLoc, err := repo.ExistsLocation(suiteCtx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(isLoc).To(BeTrue())

		isDoc, err := repo.ExistsDoctor(suiteCtx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(isDoc).To(BeFalse())

		_, err = pool.Exec(suiteCtx, `INSERT INTO doctors (id, location_id, name) VALUES ($1, $1, 'Dr. A')`, id)
		Expect(err).NotTo(HaveOccurred())
		isDoc, err = repo.ExistsDoctor(suiteCtx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(isDoc).To(BeTrue())
	})
})

var _ = Describe("PostgresStore", func() {
	var (
		st  *session.PostgresStore
		now time.Time
	)

	newRecord := func(hash string, data session.Data) *session.Record {
		return &session.Record{
			ID:        ulid.Make(),
			TokenHash: hash,
			Data:      data,
			ExpiresAt: now.Add(time.Hour),
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	BeforeEach(func() {
		truncateAll()
		st = session.NewPostgresStore(pool)
		now = time.Now().UTC().Truncate(time.Microsecond)
	})

	It("inserts, updates and deletes a record", func() {
		rec := newRecord("hash-a", session.Data{Identity: ptr(5)})
		Expect(st.Rotate(suiteCtx, "", rec)).To(Succeed())

		got, err := st.Load(suiteCtx, "hash-a")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(rec.ID))
		Expect(*got.Data.Identity).To(Equal(int32(5)))
		Expect(got.Data.LocationRole).To(BeNil())
		Expect(got.ExpiresAt.Equal(rec.ExpiresAt)).To(BeTrue())

		rec.Data.LocationRole = ptr(5)
		Expect(st.Save(suiteCtx, rec)).To(Succeed())
		got, err = st.Load(suiteCtx, "hash-a")
		Expect(err).NotTo(HaveOccurred())
		Expect(*got.Data.LocationRole).To(Equal(int32(5)))

		Expect(st.Delete(suiteCtx, "hash-a")).To(Succeed())
		_, err = st.Load(suiteCtx, "hash-a")
		Expect(err).To(MatchError(session.ErrNotFound))
	})

	It("replaces the old token on rotation", func() {
		Expect(st.Rotate(suiteCtx, "", newRecord("old", session.Data{Identity: ptr(1)}))).To(Succeed())
		Expect(st.Rotate(suiteCtx, "old", newRecord("new", session.Data{Identity: ptr(1)}))).To(Succeed())

		_, err := st.Load(suiteCtx, "old")
		Expect(err).To(MatchError(session.ErrNotFound))
		_, err = st.Load(suiteCtx, "new")
		Expect(err).NotTo(HaveOccurred())
	})

	It("reports a duplicate token hash as a conflict and keeps the old row", func() {
		Expect(st.Rotate(suiteCtx, "", newRecord("dup", session.Data{Identity: ptr(1)}))).To(Succeed())
		Expect(st.Rotate(suiteCtx, "", newRecord("keep", session.Data{Identity: ptr(2)}))).To(Succeed())

		err := st.Rotate(suiteCtx, "keep", newRecord("dup", session.Data{Identity: ptr(3)}))
		Expect(err).To(MatchError(session.ErrTokenConflict))

		_, err = st.Load(suiteCtx, "keep")
		Expect(err).NotTo(HaveOccurred(), "failed rotation must roll back the delete")
	})

	It("saving a vanished record reports not found", func() {
		err := st.Save(suiteCtx, newRecord("gone", session.Data{Identity: ptr(1)}))
		Expect(err).To(MatchError(session.ErrNotFound))
	})

	It("purges only expired records", func() {
		live := newRecord("live", session.Data{Identity: ptr(1)})
		dead := newRecord("dead", session.Data{Identity: ptr(2)})
		dead.ExpiresAt = now.Add(-time.Minute)
		Expect(st.Rotate(suiteCtx, "", live)).To(Succeed())
		Expect(st.Rotate(suiteCtx, "", dead)).To(Succeed())

		n, err := st.DeleteExpired(suiteCtx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		_, err = st.Load(suiteCtx, "live")
		Expect(err).NotTo(HaveOccurred())
	})

	It("drives a full login through the manager", func() {
		mgr, err := session.NewManager(st)
		Expect(err).NotTo(HaveOccurred())

		sess := mgr.New()
		sess.Set(session.FieldIdentity, 11)
		Expect(sess.Commit(suiteCtx)).To(Succeed())
		Expect(sess.Token()).NotTo(BeEmpty())

		again, err := mgr.Load(suiteCtx, sess.Token())
		Expect(err).NotTo(HaveOccurred())
		id, ok := again.Get(session.FieldIdentity)
		Expect(ok).To(BeTrue())
		Expect(id).To(Equal(int32(11)))
	})
})

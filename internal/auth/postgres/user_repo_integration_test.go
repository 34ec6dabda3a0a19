// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/postgres"
)

func newUser(username, email string, now time.Time) *auth.User {
	user, err := auth.NewUser("Test", username, email, "hash", auth.DigestSecret(username+"-code"), now)
	Expect(err).NotTo(HaveOccurred())
	return user
}

var _ = Describe("UserRepository", func() {
	var (
		repo *postgres.UserRepository
		now  time.Time
	)

	BeforeEach(func() {
		repo = postgres.NewUserRepository(testPool)
		now = time.Now().UTC().Truncate(time.Microsecond)
		_, err := testPool.Exec(suiteCtx, `DELETE FROM users`)
		Expect(err).NotTo(HaveOccurred())
	})

	It("round-trips a user", func() {
		user := newUser("alice", "alice@example.com", now)
		Expect(repo.Create(suiteCtx, user)).To(Succeed())

		stored, err := repo.GetByUsername(suiteCtx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.ID).To(Equal(user.ID))
		Expect(stored.Email).To(Equal("alice@example.com"))
		Expect(stored.Verified).To(BeFalse())
		Expect(stored.VerificationCode).NotTo(BeNil())
		Expect(stored.CreatedAt.Equal(now)).To(BeTrue())
	})

	It("treats usernames as case-sensitive", func() {
		Expect(repo.Create(suiteCtx, newUser("alice", "a1@example.com", now))).To(Succeed())
		Expect(repo.Create(suiteCtx, newUser("Alice", "a2@example.com", now))).To(Succeed())

		_, err := repo.GetByUsername(suiteCtx, "ALICE")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("rejects duplicate usernames and emails", func() {
		Expect(repo.Create(suiteCtx, newUser("alice", "alice@example.com", now))).To(Succeed())

		err := repo.Create(suiteCtx, newUser("alice", "other@example.com", now))
		Expect(err).To(MatchError(auth.ErrDuplicateUsername))

		err = repo.Create(suiteCtx, newUser("bob", "alice@example.com", now))
		Expect(err).To(MatchError(auth.ErrDuplicateEmail))
	})

	It("admits exactly one of many concurrent registrations for a username", func() {
		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := range workers {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				err := repo.Create(suiteCtx, newUser("racer", fmt.Sprintf("racer%d@example.com", i), now))
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
					return
				}
				Expect(err).To(MatchError(auth.ErrDuplicateUsername))
			}(i)
		}
		wg.Wait()
		Expect(successes).To(Equal(1))
	})

	It("consumes a verification code once", func() {
		user := newUser("alice", "alice@example.com", now)
		Expect(repo.Create(suiteCtx, user)).To(Succeed())

		verified, err := repo.ConsumeVerificationCode(suiteCtx, *user.VerificationCode, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(verified.Verified).To(BeTrue())
		Expect(verified.VerificationCode).To(BeNil())

		_, err = repo.ConsumeVerificationCode(suiteCtx, *user.VerificationCode, now)
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("honours reset token expiry", func() {
		user := newUser("alice", "alice@example.com", now)
		Expect(repo.Create(suiteCtx, user)).To(Succeed())

		digest := auth.DigestSecret("reset-token")
		user.SetResetToken(digest, now.Add(time.Hour), now)
		Expect(repo.Update(suiteCtx, user)).To(Succeed())

		_, err := repo.GetByResetToken(suiteCtx, digest, now)
		Expect(err).NotTo(HaveOccurred())

		_, err = repo.ConsumeResetToken(suiteCtx, digest, now.Add(2*time.Hour), "new-hash")
		Expect(err).To(MatchError(auth.ErrNotFound), "expired token must not be consumed")

		updated, err := repo.ConsumeResetToken(suiteCtx, digest, now.Add(time.Minute), "new-hash")
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.PasswordHash).To(Equal("new-hash"))
		Expect(updated.ResetPasswordToken).To(BeNil())

		_, err = repo.ConsumeResetToken(suiteCtx, digest, now.Add(time.Minute), "again")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("sets a reset token without reverting a concurrent verification", func() {
		user := newUser("alice", "alice@example.com", now)
		Expect(repo.Create(suiteCtx, user)).To(Succeed())

		_, err := repo.ConsumeVerificationCode(suiteCtx, *user.VerificationCode, now)
		Expect(err).NotTo(HaveOccurred())

		digest := auth.DigestSecret("reset-token")
		Expect(repo.SetResetToken(suiteCtx, user.ID, digest, now.Add(time.Hour), now)).To(Succeed())

		stored, err := repo.GetByID(suiteCtx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Verified).To(BeTrue())
		Expect(stored.VerificationCode).To(BeNil())
		Expect(stored.ResetPasswordToken).To(HaveValue(Equal(digest)))
	})

	It("skips a hash upgrade once the password has been reset", func() {
		user := newUser("alice", "alice@example.com", now)
		Expect(repo.Create(suiteCtx, user)).To(Succeed())

		digest := auth.DigestSecret("reset-token")
		Expect(repo.SetResetToken(suiteCtx, user.ID, digest, now.Add(time.Hour), now)).To(Succeed())
		_, err := repo.ConsumeResetToken(suiteCtx, digest, now, "reset-hash")
		Expect(err).NotTo(HaveOccurred())

		err = repo.UpgradePasswordHash(suiteCtx, user.ID, "hash", "upgraded-hash", now)
		Expect(err).To(MatchError(auth.ErrNotFound))

		stored, err := repo.GetByID(suiteCtx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.PasswordHash).To(Equal("reset-hash"))
		Expect(stored.ResetPasswordToken).To(BeNil())
	})
})

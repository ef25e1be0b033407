package bolt_test

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/repository/bolt"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		store *bolt.Store
		now   time.Time
	)

	newDraft := func(id, key string, createdAt time.Time) (*domain.Expense, *domain.ProcessingJob) {
		expense := &domain.Expense{
			ID:               "exp-" + id,
			Source:           domain.SourceVoice,
			ProcessingStatus: domain.StatusUploaded,
			Currency:         domain.DefaultCurrency,
			RawInput:         domain.RawInput{Transcript: "spent $23 at Metro"},
			CreatedAt:        createdAt,
			UpdatedAt:        createdAt,
		}
		job := &domain.ProcessingJob{
			ID:             "job-" + id,
			ExpenseID:      expense.ID,
			Status:         domain.StatusUploaded,
			IdempotencyKey: key,
			MaxAttempts:    3,
			CreatedAt:      createdAt,
			UpdatedAt:      createdAt,
		}
		return expense, job
	}

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 2, 17, 12, 0, 0, 0, time.UTC)
		var err error
		store, err = bolt.Open(filepath.Join(GinkgoT().TempDir(), "expenses.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
	})

	Describe("CreateIngestion", func() {
		It("indexes the idempotency key", func() {
			expense, job := newDraft("1", "key-1", now)
			Expect(store.CreateIngestion(ctx, expense, job)).To(Succeed())

			res, err := store.FindByIdempotencyKey(ctx, "key-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ExpenseID).To(Equal("exp-1"))
			Expect(res.ProcessingStatus).To(Equal(domain.StatusUploaded))
		})

		It("rejects a reused key as a duplicate", func() {
			expense, job := newDraft("1", "key-1", now)
			Expect(store.CreateIngestion(ctx, expense, job)).To(Succeed())

			other, otherJob := newDraft("2", "key-1", now)
			err := store.CreateIngestion(ctx, other, otherJob)
			Expect(domain.IsKind(err, domain.ErrDuplicate)).To(BeTrue())

			_, err = store.GetByID(ctx, "exp-2")
			Expect(domain.IsKind(err, domain.ErrExpenseNotFound)).To(BeTrue())
		})

		It("reports unknown keys as not found", func() {
			_, err := store.FindByIdempotencyKey(ctx, "missing")
			Expect(domain.IsKind(err, domain.ErrJobNotFound)).To(BeTrue())
		})
	})

	Describe("job lifecycle", func() {
		BeforeEach(func() {
			expense, job := newDraft("old", "key-old", now.Add(-time.Hour))
			Expect(store.CreateIngestion(ctx, expense, job)).To(Succeed())
			expense, job = newDraft("new", "key-new", now.Add(-time.Minute))
			Expect(store.CreateIngestion(ctx, expense, job)).To(Succeed())
		})

		It("lists eligible jobs oldest first", func() {
			jobs, err := store.ListPending(ctx, now, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobs).To(HaveLen(2))
			Expect(jobs[0].ID).To(Equal("job-old"))

			jobs, err = store.ListPending(ctx, now, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobs).To(HaveLen(1))
		})

		It("leases a claimed job until the lease expires", func() {
			claimed, err := store.Claim(ctx, "job-old", now, time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed.Job.Status).To(Equal(domain.StatusProcessing))
			Expect(claimed.Expense.ProcessingStatus).To(Equal(domain.StatusProcessing))
			Expect(claimed.Expense.RawInput.Transcript).To(Equal("spent $23 at Metro"))

			_, err = store.Claim(ctx, "job-old", now.Add(30*time.Second), time.Minute)
			Expect(domain.IsKind(err, domain.ErrJobNotClaimable)).To(BeTrue())

			jobs, err := store.ListPending(ctx, now.Add(30*time.Second), 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobs).To(HaveLen(1))

			_, err = store.Claim(ctx, "job-old", now.Add(2*time.Minute), time.Minute)
			Expect(err).NotTo(HaveOccurred())
		})

		It("completes a job and keeps unset fields", func() {
			claimed, err := store.Claim(ctx, "job-old", now, time.Minute)
			Expect(err).NotTo(HaveOccurred())

			amount := decimal.RequireFromString("23")
			Expect(store.Complete(ctx, claimed.Job.Lease(), domain.ExtractionOutcome{
				Fields:     domain.ExtractedFields{Amount: &amount, Currency: "CAD"},
				Category:   domain.StringPtr("Groceries"),
				Confidence: decimal.RequireFromString("0.5"),
				RawInput:   domain.RawInput{Transcript: "spent $23 at Metro"},
			}, now)).To(Succeed())

			expense, err := store.GetByID(ctx, "exp-old")
			Expect(err).NotTo(HaveOccurred())
			Expect(expense.ProcessingStatus).To(Equal(domain.StatusAwaitingUser))
			Expect(expense.Amount.StringFixed(2)).To(Equal("23.00"))
			Expect(expense.Merchant).To(BeNil())
			Expect(*expense.Category).To(Equal("Groceries"))
			Expect(expense.Confidence.StringFixed(3)).To(Equal("0.500"))

			jobs, err := store.ListPending(ctx, now.Add(time.Hour), 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].ID).To(Equal("job-new"))
		})

		It("records failures on job and expense together", func() {
			claimed, err := store.Claim(ctx, "job-old", now, time.Minute)
			Expect(err).NotTo(HaveOccurred())

			retryAt := now.Add(time.Minute)
			Expect(store.RecordFailure(ctx, domain.JobFailure{
				Lease:         claimed.Job.Lease(),
				ExpenseID:     "exp-old",
				Status:        domain.StatusProcessing,
				AttemptCount:  1,
				ErrorMessage:  "Vision API unavailable",
				NextAttemptAt: &retryAt,
			}, now)).To(Succeed())

			jobs, err := store.ListPending(ctx, now, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobs).To(HaveLen(1))

			jobs, err = store.ListPending(ctx, retryAt, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobs).To(HaveLen(2))
			Expect(*jobs[0].LastErrorMessage).To(Equal("Vision API unavailable"))

			expense, err := store.GetByID(ctx, "exp-old")
			Expect(err).NotTo(HaveOccurred())
			Expect(expense.ProcessingStatus).To(Equal(domain.StatusProcessing))
		})

		It("keeps a verification made while the job was running", func() {
			claimed, err := store.Claim(ctx, "job-old", now, time.Minute)
			Expect(err).NotTo(HaveOccurred())

			userAmount := decimal.RequireFromString("42.00")
			verified := true
			_, err = store.Update(ctx, "exp-old", domain.ExpensePatch{Amount: &userAmount, IsUserVerified: &verified}, now)
			Expect(err).NotTo(HaveOccurred())

			extracted := decimal.RequireFromString("5")
			err = store.Complete(ctx, claimed.Job.Lease(), domain.ExtractionOutcome{
				Fields:     domain.ExtractedFields{Amount: &extracted},
				Confidence: decimal.RequireFromString("0.4"),
			}, now)
			Expect(domain.IsKind(err, domain.ErrJobSuperseded)).To(BeTrue())

			err = store.RecordFailure(ctx, domain.JobFailure{
				Lease:        claimed.Job.Lease(),
				ExpenseID:    "exp-old",
				Status:       domain.StatusProcessing,
				AttemptCount: 1,
				ErrorMessage: "Vision API unavailable",
			}, now)
			Expect(domain.IsKind(err, domain.ErrJobSuperseded)).To(BeTrue())

			expense, err := store.GetByID(ctx, "exp-old")
			Expect(err).NotTo(HaveOccurred())
			Expect(expense.IsUserVerified).To(BeTrue())
			Expect(expense.ProcessingStatus).To(Equal(domain.StatusVerified))
			Expect(expense.Amount.StringFixed(2)).To(Equal("42.00"))

			jobs, err := store.ListPending(ctx, now.Add(time.Hour), 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].ID).To(Equal("job-new"))
		})

		It("rejects writes under a lease that was taken over", func() {
			first, err := store.Claim(ctx, "job-old", now, time.Minute)
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Claim(ctx, "job-old", now.Add(2*time.Minute), time.Minute)
			Expect(err).NotTo(HaveOccurred())

			err = store.Complete(ctx, first.Job.Lease(), domain.ExtractionOutcome{Confidence: decimal.Zero}, now.Add(2*time.Minute))
			Expect(domain.IsKind(err, domain.ErrJobSuperseded)).To(BeTrue())
		})

		It("surfaces a corrupt job instead of skipping it", func() {
			Expect(store.PutRawJob("job-old", []byte("{not json"))).To(Succeed())

			_, err := store.Claim(ctx, "job-old", now, time.Minute)
			Expect(err).To(HaveOccurred())
			Expect(domain.IsKind(err, domain.ErrJobNotClaimable)).To(BeFalse())
		})

		It("verifies the job when the expense is verified", func() {
			verified := true
			expense, err := store.Update(ctx, "exp-old", domain.ExpensePatch{IsUserVerified: &verified}, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(expense.ProcessingStatus).To(Equal(domain.StatusVerified))
			Expect(expense.IsUserVerified).To(BeTrue())

			jobs, err := store.ListPending(ctx, now, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].ID).To(Equal("job-new"))
		})

		It("deletes the job and frees the idempotency key with the expense", func() {
			Expect(store.Delete(ctx, "exp-old")).To(Succeed())

			_, err := store.FindByIdempotencyKey(ctx, "key-old")
			Expect(domain.IsKind(err, domain.ErrJobNotFound)).To(BeTrue())
			err = store.Delete(ctx, "exp-old")
			Expect(domain.IsKind(err, domain.ErrExpenseNotFound)).To(BeTrue())
		})
	})

	Describe("List", func() {
		It("filters settled expenses by date", func() {
			jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
			amount := decimal.RequireFromString("10")
			for i, status := range []domain.ProcessingStatus{domain.StatusVerified, domain.StatusFailed, domain.StatusAwaitingUser} {
				Expect(store.Create(ctx, &domain.Expense{
					ID:               string(rune('a' + i)),
					Source:           domain.SourceManual,
					ProcessingStatus: status,
					Amount:           &amount,
					Date:             &jan,
					CreatedAt:        now.Add(time.Duration(i) * time.Minute),
				})).To(Succeed())
			}

			from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
			expenses, err := store.List(ctx, domain.ExpenseFilter{
				ExcludeStatuses: []domain.ProcessingStatus{domain.StatusFailed},
				From:            &from,
				To:              &to,
				RequireAmount:   true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(expenses).To(HaveLen(2))
			Expect(expenses[0].ID).To(Equal("c"))
		})
	})

	Describe("device token", func() {
		It("is empty until saved and replaced on save", func() {
			token, err := store.Token(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(BeEmpty())

			Expect(store.SaveToken(ctx, "ExponentPushToken[a]")).To(Succeed())
			Expect(store.SaveToken(ctx, "ExponentPushToken[b]")).To(Succeed())
			token, err = store.Token(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("ExponentPushToken[b]"))
		})
	})
})

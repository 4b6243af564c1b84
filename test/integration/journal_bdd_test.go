//go:build integration

package integration

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
	"github.com/Misaka-0x447f/project-DaBES/internal/infra"
	"github.com/Misaka-0x447f/project-DaBES/internal/usecase"
	"github.com/Misaka-0x447f/project-DaBES/test/fixtures"
)

var _ = Describe("Encrypted journal", func() {
	var (
		tmpDir string
		key    []byte
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dabes-journal-*")
		Expect(err).NotTo(HaveOccurred())
		key, err = infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Context("when a run is journaled", func() {
		It("should replay every tick after reopening with the same key", func() {
			level := loadFixture(tmpDir, "gateway", fixtures.GatewayLevel)
			engine, _ := newEngine(level, usecase.DefaultConfig(), infra.NewFixedRoller())

			journal, err := infra.NewEncryptedJournal(tmpDir, key)
			Expect(err).NotTo(HaveOccurred())

			run := domain.RunInfo{ID: uuid.NewString(), Level: level.Name, Seed: 7, StartedAt: time.Now()}
			Expect(engine.WithJournal(journal, run)).To(Succeed())

			result, err := engine.Run(context.Background(), usecase.Plan{
				Turns: []usecase.Turn{
					{Moves: []string{"lobby"}, Actions: []usecase.PlanStep{{Action: "analyze", Target: "fw"}}},
					{Moves: []string{"vault"}, Actions: []usecase.PlanStep{{Action: "download", Target: "payload"}}},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Reports).To(HaveLen(2))
			Expect(journal.Close()).To(Succeed())

			reopened, err := infra.NewEncryptedJournal(tmpDir, key)
			Expect(err).NotTo(HaveOccurred())
			defer reopened.Close()

			runs, err := reopened.ListRuns()
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(1))
			Expect(runs[0].ID).To(Equal(run.ID))
			Expect(runs[0].Level).To(Equal("gateway"))
			Expect(runs[0].Seed).To(Equal(int64(7)))
			Expect(runs[0].Reason).To(Equal(domain.ReasonObjectiveComplete))
			Expect(runs[0].Ticks).To(Equal(2))
			Expect(runs[0].EndedAt).NotTo(BeNil())

			ticks, err := reopened.Ticks(run.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ticks).To(HaveLen(2))
			Expect(ticks[1].Tick).To(Equal(2))
			Expect(ticks[1].Termination).NotTo(BeNil())
			Expect(ticks[1].Outcomes).To(HaveLen(len(result.Reports[1].Outcomes)))
		})
	})

	Context("when the journal is opened with the wrong key", func() {
		It("should refuse to read it", func() {
			journal, err := infra.NewEncryptedJournal(tmpDir, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(journal.BeginRun(domain.RunInfo{ID: uuid.NewString(), Level: "gateway", StartedAt: time.Now()})).To(Succeed())
			Expect(journal.Close()).To(Succeed())

			wrong, err := infra.GenerateKey()
			Expect(err).NotTo(HaveOccurred())

			_, err = infra.NewEncryptedJournal(tmpDir, wrong)
			Expect(err).To(HaveOccurred())
		})
	})
})

//go:build integration

package integration

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/Misaka-0x447f/project-DaBES/internal/daemon"
	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
	"github.com/Misaka-0x447f/project-DaBES/internal/infra"
	"github.com/Misaka-0x447f/project-DaBES/internal/policy"
	"github.com/Misaka-0x447f/project-DaBES/internal/usecase"
	"github.com/Misaka-0x447f/project-DaBES/test/fixtures"
)

func loadFixture(dir, name, body string) *infra.Level {
	fake := fixtures.NewFakeLevel(dir, name, body)
	Expect(fake.Create()).To(Succeed())
	Expect(fake.Exists()).To(BeTrue())

	level, err := infra.LoadLevel(fake.Path())
	Expect(err).NotTo(HaveOccurred())
	return level
}

func buildEngine(level *infra.Level, config usecase.Config, roller domain.Roller) (*usecase.Engine, *infra.NodeRegistry, error) {
	policies := policy.NewPolicyStore()
	reg, err := infra.NewNodeRegistry(level.Nodes, policies, zap.NewNop())
	if err != nil {
		return nil, nil, err
	}

	watcher := daemon.NewWatcher(daemon.DefaultInterlockConfig(), reg, zap.NewNop())
	engine, err := usecase.NewEngine(config.WithOverrides(level.TickBudget, level.MaxTicks), reg, policies, watcher, roller, zap.NewNop())
	if err != nil {
		return nil, nil, err
	}
	return engine, reg, nil
}

func newEngine(level *infra.Level, config usecase.Config, roller domain.Roller) (*usecase.Engine, *infra.NodeRegistry) {
	engine, reg, err := buildEngine(level, config, roller)
	Expect(err).NotTo(HaveOccurred())
	return engine, reg
}

func mustPlan(data string) usecase.Plan {
	plan, err := usecase.ParsePlan([]byte(data))
	Expect(err).NotTo(HaveOccurred())
	return plan
}

var _ = Describe("Simulation scenarios", func() {
	var (
		tmpDir string
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dabes-integration-*")
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("Gateway level", func() {
		var level *infra.Level

		BeforeEach(func() {
			level = loadFixture(tmpDir, "gateway", fixtures.GatewayLevel)
		})

		Context("when the player walks straight to the payload", func() {
			It("should complete the objective in one tick", func() {
				engine, _ := newEngine(level, usecase.DefaultConfig(), infra.NewFixedRoller())

				result, err := engine.Run(ctx, mustPlan(`
turns:
  - moves: [lobby, vault]
    actions: [{action: download, target: payload}]
`))
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Rejected).To(BeEmpty())
				Expect(result.Termination).NotTo(BeNil())
				Expect(result.Termination.Reason).To(Equal(domain.ReasonObjectiveComplete))
				Expect(result.Termination.Tick).To(Equal(1))
				Expect(result.Threat.ProbeLevel).To(BeZero())
			})
		})

		Context("when the firewall is stopped under an interlocked watchdog", func() {
			It("should restart the firewall at the start of the next tick", func() {
				engine, reg := newEngine(level, usecase.DefaultConfig(), infra.NewFixedRoller())

				result, err := engine.Run(ctx, mustPlan(`
turns:
  - moves: [lobby]
    actions: [{action: analyze, target: fw}]
  - actions: [{action: stop, target: fw}]
  - {}
`))
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Reports).To(HaveLen(3))

				stopped := result.Reports[1]
				Expect(stopped.Changes).To(ContainElement(domain.StateChange{Node: "fw", From: domain.StateActive, To: domain.StateRestarting}))
				Expect(stopped.Pending).To(HaveLen(1))
				Expect(stopped.Pending[0].DueTick).To(Equal(3))

				restarted := result.Reports[2]
				Expect(restarted.Changes).To(ContainElement(domain.StateChange{Node: "fw", From: domain.StateRestarting, To: domain.StateActive}))
				Expect(restarted.Pending).To(BeEmpty())

				fw, err := reg.Get("fw")
				Expect(err).NotTo(HaveOccurred())
				Expect(fw.State).To(Equal(domain.StateActive))
			})
		})

		Context("when the player reads the readme", func() {
			It("should reveal it with its own description", func() {
				engine, _ := newEngine(level, usecase.DefaultConfig(), infra.NewFixedRoller())

				_, err := engine.Enter("lobby")
				Expect(err).NotTo(HaveOccurred())
				rec, err := engine.Enter("notes")
				Expect(err).NotTo(HaveOccurred())

				Expect(rec.Revealed).To(Equal(domain.TypeReadme))
				Expect(rec.Description).To(ContainSubstring("watchdog"))
				Expect(engine.Location()).To(Equal(domain.NodeID("lobby")))
			})
		})

		Context("when the same plan is simulated many times", func() {
			It("should be reproducible for the same seeds", func() {
				plan := mustPlan(`
turns:
  - moves: [lobby]
    actions: [{action: analyze, target: fw}]
  - actions: [{action: overwrite-disable, target: fw}]
  - actions: [{action: overwrite-disable, target: fw}]
wait_to_end: true
`)
				factory := func(i int) (*usecase.Engine, error) {
					engine, _, err := buildEngine(level, usecase.DefaultConfig(), infra.NewSeededRoller(int64(i)))
					return engine, err
				}

				first, err := usecase.RunBatch(ctx, 6, 3, factory, plan, zap.NewNop())
				Expect(err).NotTo(HaveOccurred())
				second, err := usecase.RunBatch(ctx, 6, 2, factory, plan, zap.NewNop())
				Expect(err).NotTo(HaveOccurred())

				for i := range first {
					Expect(second[i].Threat).To(Equal(first[i].Threat))
					Expect(second[i].Termination).To(Equal(first[i].Termination))
				}
				Expect(usecase.Summarize(first).Runs).To(Equal(6))
			})
		})
	})

	Describe("Tripwire level", func() {
		var (
			level  *infra.Level
			config usecase.Config
		)

		BeforeEach(func() {
			level = loadFixture(tmpDir, "tripwire", fixtures.AlarmLevel)
			config = usecase.DefaultConfig()
			config.AlarmCeiling = 5
			config.AlarmCountdownTicks = 2
		})

		Context("when the sentinel notices the player", func() {
			It("should trigger the alarm after the countdown", func() {
				engine, _ := newEngine(level, config, infra.NewFixedRoller())

				result, err := engine.Run(ctx, mustPlan(`
turns:
  - actions: [{action: analyze, target: fw}]
  - actions: [{action: stop, target: fw}]
wait_to_end: true
`))
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Reports[0].ThreatLevel).To(BeZero())
				Expect(*result.Reports[1].AlarmCountdown).To(Equal(2))
				Expect(result.Termination).NotTo(BeNil())
				Expect(result.Termination.Reason).To(Equal(domain.ReasonAlarmTriggered))
				Expect(result.Termination.Tick).To(Equal(4))
			})
		})

		Context("when the sentinel is disabled during the countdown", func() {
			It("should cancel the alarm and allow the download", func() {
				engine, reg := newEngine(level, config, infra.NewFixedRoller())

				result, err := engine.Run(ctx, mustPlan(`
turns:
  - actions: [{action: analyze, target: fw}, {action: analyze, target: sentinel}]
  - actions: [{action: stop, target: fw}]
  - actions: [{action: overwrite-disable, target: sentinel}]
  - {}
  - actions: [{action: download, target: sentinel}]
`))
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Rejected).To(BeEmpty())

				Expect(result.Reports[2].Outcomes[0].Status).To(Equal(domain.StatusDeferred))
				Expect(result.Reports[3].AlarmCountdown).To(BeNil())

				sentinel, err := reg.Get("sentinel")
				Expect(err).NotTo(HaveOccurred())
				Expect(sentinel.State).To(Equal(domain.StateDisabled))

				Expect(result.Termination).NotTo(BeNil())
				Expect(result.Termination.Reason).To(Equal(domain.ReasonObjectiveComplete))
				Expect(result.Termination.Tick).To(Equal(5))
			})
		})
	})
})

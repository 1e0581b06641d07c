// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package upgrader_test

import (
	"context"
	"strings"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/juju/service-upgrader/core/service"
	"github.com/juju/service-upgrader/internal/upgrader"
)

type orchestratorSuite struct {
	testing.IsolationSuite

	client *MockClusterClient
	locker *MockLocker

	clock    *testclock.Clock
	writer   *loggo.TestWriter
	logger   loggo.Logger
	released bool
}

var _ = gc.Suite(&orchestratorSuite{})

var launchConfig = service.LaunchConfig{"imageUuid": "docker:shop/web:2.1"}

func (s *orchestratorSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Now())
	s.released = false

	s.writer = &loggo.TestWriter{}
	context := loggo.NewContext(loggo.DEBUG)
	c.Assert(context.AddWriter("test", s.writer), jc.ErrorIsNil)
	s.logger = context.GetLogger("upgrader")
}

func (s *orchestratorSuite) setupMocks(c *gc.C) *gomock.Controller {
	ctrl := gomock.NewController(c)
	s.client = NewMockClusterClient(ctrl)
	s.locker = NewMockLocker(ctrl)
	return ctrl
}

func (s *orchestratorSuite) config() upgrader.Config {
	return upgrader.Config{
		Client: s.client,
		Locker: s.locker,
		Clock:  s.clock,
		Logger: s.logger,
		Strategy: service.Strategy{
			BatchSize: 1,
			Interval:  2 * time.Second,
		},
		Timeout:        10 * time.Second,
		PollInterval:   5 * time.Second,
		RollbackOnFail: true,
		ReadAttempts:   1,
	}
}

func activeService() service.Service {
	return service.Service{
		ID:           "1s5",
		Name:         "web",
		State:        service.Active,
		HealthState:  service.Healthy,
		LaunchConfig: launchConfig,
	}
}

func snapshot(state service.State, health service.HealthState) service.Service {
	svc := activeService()
	svc.State = state
	svc.HealthState = health
	return svc
}

func (s *orchestratorSuite) expectLock() {
	s.locker.EXPECT().Acquire(gomock.Any(), "1s5").Return(func() { s.released = true }, nil)
}

// expectCurrent expects the status read made once the lock is held.
func (s *orchestratorSuite) expectCurrent(svc service.Service) *gomock.Call {
	return s.client.EXPECT().Service(gomock.Any(), "1s5").Return(svc, nil)
}

func (s *orchestratorSuite) expectUpgrade() {
	gomock.InOrder(
		s.expectCurrent(activeService()),
		s.client.EXPECT().Upgrade(gomock.Any(), "1s5", service.Strategy{
			BatchSize:    1,
			Interval:     2 * time.Second,
			LaunchConfig: launchConfig,
		}).Return(nil),
	)
}

type runResult struct {
	session upgrader.Session
	err     error
}

func (s *orchestratorSuite) start(c *gc.C, ctx context.Context, cfg upgrader.Config) <-chan runResult {
	orchestrator, err := upgrader.NewOrchestrator(cfg)
	c.Assert(err, jc.ErrorIsNil)

	done := make(chan runResult, 1)
	go func() {
		session, err := orchestrator.Run(ctx, activeService())
		done <- runResult{session, err}
	}()
	return done
}

// advance moves the clock forward by d, n times, each time once something
// is waiting on it.
func (s *orchestratorSuite) advance(c *gc.C, d time.Duration, n int) {
	for i := 0; i < n; i++ {
		c.Assert(s.clock.WaitAdvance(d, longWait, 1), jc.ErrorIsNil)
	}
}

func (s *orchestratorSuite) result(c *gc.C, done <-chan runResult) runResult {
	select {
	case res := <-done:
		return res
	case <-time.After(longWait):
		c.Fatalf("timed out waiting for upgrade to finish")
	}
	return runResult{}
}

func (s *orchestratorSuite) messages(level loggo.Level) []string {
	var messages []string
	for _, entry := range s.writer.Log() {
		if entry.Level == level {
			messages = append(messages, entry.Message)
		}
	}
	return messages
}

func (s *orchestratorSuite) TestValidateConfig(c *gc.C) {
	defer s.setupMocks(c).Finish()

	for i, test := range []struct {
		mutate func(*upgrader.Config)
		err    string
	}{{
		mutate: func(cfg *upgrader.Config) { cfg.Client = nil },
		err:    "nil Client not valid",
	}, {
		mutate: func(cfg *upgrader.Config) { cfg.Locker = nil },
		err:    "nil Locker not valid",
	}, {
		mutate: func(cfg *upgrader.Config) { cfg.Clock = nil },
		err:    "nil Clock not valid",
	}, {
		mutate: func(cfg *upgrader.Config) { cfg.Logger = nil },
		err:    "nil Logger not valid",
	}, {
		mutate: func(cfg *upgrader.Config) { cfg.Timeout = 0 },
		err:    "timeout 0s not valid",
	}, {
		mutate: func(cfg *upgrader.Config) { cfg.PollInterval = -time.Second },
		err:    "poll interval -1s not valid",
	}, {
		mutate: func(cfg *upgrader.Config) { cfg.ReadAttempts = 0 },
		err:    "read attempts 0 not valid",
	}, {
		mutate: func(cfg *upgrader.Config) { cfg.Strategy.BatchSize = 0 },
		err:    "batch size 0 not valid",
	}} {
		c.Logf("test %d: %s", i, test.err)
		cfg := s.config()
		test.mutate(&cfg)
		err := cfg.Validate()
		c.Check(err, jc.Satisfies, errors.IsNotValid)
		c.Check(err, gc.ErrorMatches, test.err)

		_, err = upgrader.NewOrchestrator(cfg)
		c.Check(err, gc.ErrorMatches, test.err)
	}
}

func (s *orchestratorSuite) TestServiceNotActive(c *gc.C) {
	for i, state := range []service.State{
		service.Upgrading, service.Upgraded, service.Inactive, service.RollingBack, "",
	} {
		c.Logf("test %d: %q", i, state)
		ctrl := s.setupMocks(c)
		s.released = false
		s.expectLock()
		s.expectCurrent(snapshot(state, service.Healthy))

		orchestrator, err := upgrader.NewOrchestrator(s.config())
		c.Assert(err, jc.ErrorIsNil)

		session, err := orchestrator.Run(context.Background(), activeService())
		c.Check(err, jc.ErrorIs, upgrader.ErrServiceNotActive)
		c.Check(err, gc.ErrorMatches, `service web\(1s5\) is .*, not active`)
		c.Check(session.Outcome, gc.Equals, upgrader.Failed)
		c.Check(session.Ticks, gc.Equals, 0)
		c.Check(s.released, jc.IsTrue)
		ctrl.Finish()
	}
}

func (s *orchestratorSuite) TestUpgradeSucceeds(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	gomock.InOrder(
		s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgrading, service.Initializing), nil),
		s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgraded, service.Healthy), nil),
		s.client.EXPECT().FinishUpgrade(gomock.Any(), "1s5").Return(nil),
	)

	cfg := s.config()
	cfg.Timeout = time.Minute
	done := s.start(c, context.Background(), cfg)
	s.advance(c, 5*time.Second, 2)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIsNil)
	c.Check(res.session, jc.DeepEquals, upgrader.Session{
		ServiceID:      "1s5",
		ServiceName:    "web",
		Outcome:        upgrader.Succeeded,
		Ticks:          2,
		Elapsed:        10 * time.Second,
		Timeout:        time.Minute,
		PollInterval:   5 * time.Second,
		RollbackOnFail: true,
	})
	c.Check(s.released, jc.IsTrue)
	c.Check(s.messages(loggo.INFO), jc.DeepEquals, []string{
		"upgrade of service web(1s5) started",
		"service web(1s5) upgraded after 10s",
	})
}

func (s *orchestratorSuite) TestUpgradedButNotHealthyKeepsPolling(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	gomock.InOrder(
		s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgraded, service.Initializing), nil),
		s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgrading, service.Healthy), nil),
		s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgraded, service.Healthy), nil),
		s.client.EXPECT().FinishUpgrade(gomock.Any(), "1s5").Return(nil).Times(1),
	)

	cfg := s.config()
	cfg.Timeout = time.Minute
	done := s.start(c, context.Background(), cfg)
	s.advance(c, 5*time.Second, 3)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIsNil)
	c.Check(res.session.Outcome, gc.Equals, upgrader.Succeeded)
	c.Check(res.session.Ticks, gc.Equals, 3)
}

func (s *orchestratorSuite) TestSuccessOnLastTick(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	gomock.InOrder(
		s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgrading, service.Initializing), nil),
		s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgraded, service.Healthy), nil),
		s.client.EXPECT().FinishUpgrade(gomock.Any(), "1s5").Return(nil),
	)

	done := s.start(c, context.Background(), s.config())
	s.advance(c, 5*time.Second, 2)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIsNil)
	c.Check(res.session.Outcome, gc.Equals, upgrader.Succeeded)
	c.Check(res.session.Elapsed, gc.Equals, 10*time.Second)
}

func (s *orchestratorSuite) TestTimeoutRollsBack(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgrading, service.Initializing), nil).Times(2)
	s.client.EXPECT().Rollback(gomock.Any(), "1s5").Return(nil).Times(1)

	done := s.start(c, context.Background(), s.config())
	s.advance(c, 5*time.Second, 2)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIs, upgrader.ErrUpgradeTimeout)
	c.Check(res.err, jc.Satisfies, errors.IsTimeout)
	c.Check(res.err, gc.ErrorMatches, `service web\(1s5\) did not finish upgrading within 10s, rolled back`)
	c.Check(res.session.Outcome, gc.Equals, upgrader.TimedOutRolledBack)
	c.Check(res.session.RolledBack, jc.IsTrue)
	c.Check(res.session.Ticks, gc.Equals, 2)
	c.Check(res.session.Elapsed, gc.Equals, 10*time.Second)
	c.Check(s.released, jc.IsTrue)
	c.Check(s.messages(loggo.ERROR), jc.DeepEquals, []string{
		"service web(1s5) did not finish upgrading within 10s",
	})
}

func (s *orchestratorSuite) TestTimeoutRollbackFails(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgrading, service.Initializing), nil).Times(2)
	s.client.EXPECT().Rollback(gomock.Any(), "1s5").Return(errors.New("boom")).Times(1)

	done := s.start(c, context.Background(), s.config())
	s.advance(c, 5*time.Second, 2)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIs, upgrader.ErrUpgradeTimeout)
	c.Check(res.err, gc.Not(jc.ErrorIs), upgrader.ErrRemote)
	c.Check(res.err, gc.ErrorMatches, `service web\(1s5\) did not finish upgrading within 10s, and rollback failed: boom`)
	c.Check(res.session.Outcome, gc.Equals, upgrader.TimedOutNoRollback)
	c.Check(res.session.RolledBack, jc.IsFalse)
	c.Check(s.messages(loggo.ERROR), jc.DeepEquals, []string{
		"service web(1s5) did not finish upgrading within 10s",
		"rolling back service web(1s5): boom",
	})
}

func (s *orchestratorSuite) TestTimeoutWithoutRollback(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgrading, service.Initializing), nil).Times(2)

	cfg := s.config()
	cfg.RollbackOnFail = false
	done := s.start(c, context.Background(), cfg)
	s.advance(c, 5*time.Second, 2)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIs, upgrader.ErrUpgradeTimeout)
	c.Check(res.err, gc.ErrorMatches, `service web\(1s5\) did not finish upgrading within 10s`)
	c.Check(res.session.Outcome, gc.Equals, upgrader.TimedOutNoRollback)
}

func (s *orchestratorSuite) TestTimeoutNotMultipleOfInterval(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgrading, service.Unhealthy), nil).Times(3)

	cfg := s.config()
	cfg.Timeout = 12 * time.Second
	cfg.RollbackOnFail = false
	done := s.start(c, context.Background(), cfg)
	s.advance(c, 5*time.Second, 3)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIs, upgrader.ErrUpgradeTimeout)
	c.Check(res.session.Ticks, gc.Equals, 3)
	c.Check(res.session.Elapsed, gc.Equals, 15*time.Second)
}

func (s *orchestratorSuite) TestProgressLoggedEveryFourthInterval(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgrading, service.Initializing), nil).Times(8)

	cfg := s.config()
	cfg.PollInterval = time.Second
	cfg.Timeout = 8 * time.Second
	cfg.RollbackOnFail = false
	done := s.start(c, context.Background(), cfg)
	s.advance(c, time.Second, 8)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIs, upgrader.ErrUpgradeTimeout)

	var progress []string
	for _, msg := range s.messages(loggo.INFO) {
		if strings.Contains(msg, "upgrading (") {
			progress = append(progress, msg)
		}
	}
	c.Check(progress, jc.DeepEquals, []string{
		"service web(1s5) upgrading (4s of 8s)",
		"service web(1s5) upgrading (8s of 8s)",
	})
}

func (s *orchestratorSuite) TestIssueFails(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectCurrent(activeService())
	s.client.EXPECT().Upgrade(gomock.Any(), "1s5", gomock.Any()).Return(errors.Unauthorizedf("bad keys"))

	orchestrator, err := upgrader.NewOrchestrator(s.config())
	c.Assert(err, jc.ErrorIsNil)

	session, err := orchestrator.Run(context.Background(), activeService())
	c.Assert(err, jc.ErrorIs, upgrader.ErrRemote)
	c.Check(err, jc.Satisfies, errors.IsUnauthorized)
	c.Check(err, gc.ErrorMatches, "bad keys")
	c.Check(session.Outcome, gc.Equals, upgrader.Failed)
	c.Check(s.released, jc.IsTrue)
}

func (s *orchestratorSuite) TestReadFails(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	s.client.EXPECT().Service(gomock.Any(), "1s5").Return(service.Service{}, errors.New("connection refused"))

	done := s.start(c, context.Background(), s.config())
	s.advance(c, 5*time.Second, 1)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIs, upgrader.ErrRemote)
	c.Check(res.err, gc.ErrorMatches, "connection refused")
	c.Check(res.session.Outcome, gc.Equals, upgrader.Failed)
	c.Check(res.session.Ticks, gc.Equals, 1)
}

func (s *orchestratorSuite) TestReadRetried(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	gomock.InOrder(
		s.client.EXPECT().Service(gomock.Any(), "1s5").Return(service.Service{}, errors.New("connection reset")),
		s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgraded, service.Healthy), nil),
		s.client.EXPECT().FinishUpgrade(gomock.Any(), "1s5").Return(nil),
	)

	cfg := s.config()
	cfg.ReadAttempts = 3
	done := s.start(c, context.Background(), cfg)
	s.advance(c, 5*time.Second, 1)
	s.advance(c, time.Second, 1)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIsNil)
	c.Check(res.session.Outcome, gc.Equals, upgrader.Succeeded)
	c.Check(res.session.Elapsed, gc.Equals, 5*time.Second)
	c.Check(s.messages(loggo.WARNING), jc.DeepEquals, []string{
		"attempt 1 reading service 1s5: connection reset",
	})
}

func (s *orchestratorSuite) TestReadRetriesExhausted(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	s.client.EXPECT().Service(gomock.Any(), "1s5").Return(service.Service{}, errors.New("connection reset")).Times(2)

	cfg := s.config()
	cfg.ReadAttempts = 2
	cfg.PollInterval = 500 * time.Millisecond
	done := s.start(c, context.Background(), cfg)
	s.advance(c, 500*time.Millisecond, 2)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIs, upgrader.ErrRemote)
	c.Check(res.err, gc.ErrorMatches, "connection reset")
	c.Check(res.session.Outcome, gc.Equals, upgrader.Failed)
}

func (s *orchestratorSuite) TestReadNotFoundNotRetried(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	s.client.EXPECT().Service(gomock.Any(), "1s5").Return(service.Service{}, errors.NotFoundf("service 1s5"))

	cfg := s.config()
	cfg.ReadAttempts = 3
	done := s.start(c, context.Background(), cfg)
	s.advance(c, 5*time.Second, 1)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIs, upgrader.ErrRemote)
	c.Check(res.err, jc.Satisfies, errors.IsNotFound)
	c.Check(res.err, gc.ErrorMatches, "service 1s5 not found")
	c.Check(s.messages(loggo.WARNING), gc.HasLen, 0)
}

func (s *orchestratorSuite) TestReadUnauthorizedNotRetried(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	s.client.EXPECT().Service(gomock.Any(), "1s5").Return(service.Service{}, errors.Unauthorizedf("bad keys"))

	cfg := s.config()
	cfg.ReadAttempts = 3
	done := s.start(c, context.Background(), cfg)
	s.advance(c, 5*time.Second, 1)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIs, upgrader.ErrRemote)
	c.Check(res.err, jc.Satisfies, errors.IsUnauthorized)
	c.Check(res.err, gc.ErrorMatches, "bad keys")
}

func (s *orchestratorSuite) TestFinishFails(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()
	s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgraded, service.Healthy), nil)
	s.client.EXPECT().FinishUpgrade(gomock.Any(), "1s5").Return(errors.New("conflict"))

	done := s.start(c, context.Background(), s.config())
	s.advance(c, 5*time.Second, 1)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIs, upgrader.ErrRemote)
	c.Check(res.session.Outcome, gc.Equals, upgrader.Failed)
}

func (s *orchestratorSuite) TestLockFails(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.locker.EXPECT().Acquire(gomock.Any(), "1s5").Return(nil, errors.New("lock busy"))

	orchestrator, err := upgrader.NewOrchestrator(s.config())
	c.Assert(err, jc.ErrorIsNil)

	session, err := orchestrator.Run(context.Background(), activeService())
	c.Assert(err, gc.ErrorMatches, `locking service web\(1s5\): lock busy`)
	c.Check(session.Outcome, gc.Equals, upgrader.Failed)
}

func (s *orchestratorSuite) TestStateChangedWhileWaitingForLock(c *gc.C) {
	defer s.setupMocks(c).Finish()

	// The caller resolved the service while it was active, but another
	// upgrade started before the lock was granted.
	s.expectLock()
	s.expectCurrent(snapshot(service.Upgrading, service.Initializing))

	orchestrator, err := upgrader.NewOrchestrator(s.config())
	c.Assert(err, jc.ErrorIsNil)

	session, err := orchestrator.Run(context.Background(), activeService())
	c.Assert(err, jc.ErrorIs, upgrader.ErrServiceNotActive)
	c.Check(err, gc.Not(jc.ErrorIs), upgrader.ErrRemote)
	c.Check(err, gc.ErrorMatches, `service web\(1s5\) is upgrading, not active`)
	c.Check(session.Outcome, gc.Equals, upgrader.Failed)
	c.Check(s.released, jc.IsTrue)
}

func (s *orchestratorSuite) TestUpgradeUsesCurrentLaunchConfig(c *gc.C) {
	defer s.setupMocks(c).Finish()

	current := activeService()
	current.LaunchConfig = service.LaunchConfig{"imageUuid": "docker:shop/web:2.2"}
	s.expectLock()
	s.expectCurrent(current)
	s.client.EXPECT().Upgrade(gomock.Any(), "1s5", service.Strategy{
		BatchSize:    1,
		Interval:     2 * time.Second,
		LaunchConfig: current.LaunchConfig,
	}).Return(errors.New("stop here"))

	orchestrator, err := upgrader.NewOrchestrator(s.config())
	c.Assert(err, jc.ErrorIsNil)

	_, err = orchestrator.Run(context.Background(), activeService())
	c.Assert(err, gc.ErrorMatches, "stop here")
}

func (s *orchestratorSuite) TestCurrentStatusReadFails(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.client.EXPECT().Service(gomock.Any(), "1s5").Return(service.Service{}, errors.NotFoundf("service 1s5"))

	orchestrator, err := upgrader.NewOrchestrator(s.config())
	c.Assert(err, jc.ErrorIsNil)

	session, err := orchestrator.Run(context.Background(), activeService())
	c.Assert(err, jc.ErrorIs, upgrader.ErrRemote)
	c.Check(err, jc.Satisfies, errors.IsNotFound)
	c.Check(session.Outcome, gc.Equals, upgrader.Failed)
	c.Check(s.released, jc.IsTrue)
}

func (s *orchestratorSuite) TestCancelDuringUpgradeCall(c *gc.C) {
	defer s.setupMocks(c).Finish()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.expectLock()
	s.expectCurrent(activeService())
	s.client.EXPECT().Upgrade(gomock.Any(), "1s5", gomock.Any()).DoAndReturn(
		func(context.Context, string, service.Strategy) error {
			cancel()
			return errors.New("request cancelled")
		},
	)

	orchestrator, err := upgrader.NewOrchestrator(s.config())
	c.Assert(err, jc.ErrorIsNil)

	session, err := orchestrator.Run(ctx, activeService())
	c.Assert(err, jc.ErrorIs, upgrader.ErrAborted)
	c.Check(err, jc.ErrorIs, context.Canceled)
	c.Check(err, gc.Not(jc.ErrorIs), upgrader.ErrRemote)
	c.Check(session.Outcome, gc.Equals, upgrader.Aborted)
	c.Check(s.released, jc.IsTrue)
}

func (s *orchestratorSuite) TestCancelDuringFinishCall(c *gc.C) {
	defer s.setupMocks(c).Finish()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.expectLock()
	s.expectUpgrade()
	s.client.EXPECT().Service(gomock.Any(), "1s5").Return(snapshot(service.Upgraded, service.Healthy), nil)
	s.client.EXPECT().FinishUpgrade(gomock.Any(), "1s5").DoAndReturn(
		func(context.Context, string) error {
			cancel()
			return errors.New("request cancelled")
		},
	)

	done := s.start(c, ctx, s.config())
	s.advance(c, 5*time.Second, 1)

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIs, upgrader.ErrAborted)
	c.Check(res.err, gc.Not(jc.ErrorIs), upgrader.ErrRemote)
	c.Check(res.session.Outcome, gc.Equals, upgrader.Aborted)
	c.Check(res.session.Ticks, gc.Equals, 1)
}

func (s *orchestratorSuite) TestCancelWhileWaiting(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.expectLock()
	s.expectUpgrade()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := s.start(c, ctx, s.config())

	// Wait for the first poll to be scheduled before cancelling.
	c.Assert(s.clock.WaitAdvance(0, longWait, 1), jc.ErrorIsNil)
	cancel()

	res := s.result(c, done)
	c.Assert(res.err, jc.ErrorIs, upgrader.ErrAborted)
	c.Check(res.err, gc.Not(jc.ErrorIs), upgrader.ErrUpgradeTimeout)
	c.Check(res.session.Outcome, gc.Equals, upgrader.Aborted)
	c.Check(s.released, jc.IsTrue)
}
